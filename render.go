package fantagal

import "errors"

// ErrStreamRunning is returned by Render while the audio stream owns the
// mixer.
var ErrStreamRunning = errors.New("fantagal: stream is running")

// Render pulls seconds of interleaved stereo through the mixer without a
// device, stepping the gear simulation at the configured frame rate. It is
// meant for tests and benchmarks; the stream must be stopped.
func (p *Platform) Render(seconds float64) ([]float32, error) {
	if p.Running() {
		return nil, ErrStreamRunning
	}
	sr := p.manager.SampleRate()
	block := p.manager.FramesPerBuffer()
	frames := int(float64(sr) * seconds)
	if frames <= 0 {
		return nil, nil
	}
	p.mixer.Prepare(sr, block)
	out := make([]float32, frames*2)
	perStep := float64(sr) / p.frameRate
	var nextStep float64
	for pos := 0; pos < frames; {
		n := min(block, frames-pos)
		for float64(pos) >= nextStep {
			p.sim.Step()
			nextStep += perStep
		}
		p.mixer.Process(out[pos*2:(pos+n)*2], n)
		pos += n
	}
	return out, nil
}
