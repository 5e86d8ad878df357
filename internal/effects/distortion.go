package effects

import (
	"math"

	"github.com/tonetxo/fantagal-go/internal/dsp"
)

// Distortion is a tanh waveshaper between an input drive and an output
// gain, optionally darkened by a one-pole tone filter.
type Distortion struct {
	preGain    float32
	postGain   float32
	toneHz     float32
	sampleRate float32
	toneL      dsp.OnePole
	toneR      dsp.OnePole
}

// NewDistortion builds a shaper. toneHz <= 0 or above Nyquist disables the
// tone filter.
func NewDistortion(sampleRate int, preGain, postGain, toneHz float32) *Distortion {
	d := &Distortion{
		preGain:    preGain,
		postGain:   postGain,
		sampleRate: float32(sampleRate),
	}
	if toneHz > 0 && toneHz < d.sampleRate/2 {
		d.toneHz = toneHz
	}
	return d
}

func (d *Distortion) shape(x float32, tone *dsp.OnePole) float32 {
	y := float32(math.Tanh(float64(x*d.preGain))) * d.postGain
	if d.toneHz > 0 {
		y = tone.Lowpass(y, d.toneHz, d.sampleRate)
	}
	return y
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	return d.shape(l, &d.toneL), d.shape(r, &d.toneR)
}

// ProcessMono shapes a single channel using the left filter state.
func (d *Distortion) ProcessMono(x float32) float32 {
	return d.shape(x, &d.toneL)
}

// SetGains changes drive and output level.
func (d *Distortion) SetGains(preGain, postGain float32) {
	d.preGain = preGain
	d.postGain = postGain
}

func (d *Distortion) Reset() {
	d.toneL.Reset()
	d.toneR.Reset()
}
