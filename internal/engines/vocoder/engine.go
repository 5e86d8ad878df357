// Package vocoder imposes the spectral envelope of a recorded modulator on a
// carrier. The carrier is the mono mix of the other engines, optionally
// blended with an internal saw and noise source played by PlayNote.
package vocoder

import (
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"

	"github.com/tonetxo/fantagal-go/internal/dsp"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

// NumBands is the number of analysis and synthesis bands.
const NumBands = 16

var bandFreqs = [NumBands]float32{
	150, 220, 320, 440, 620, 850, 1150, 1500,
	2000, 2600, 3400, 4400, 5600, 6800, 8200, 10000,
}

type Params struct {
	MasterGain float32
	// Intensity scales the vocoded signal before the dry/wet blend.
	Intensity float32
	// PreGain drives the modulator into the saturator before analysis.
	PreGain float32
	// NoiseLevel is the share of noise in the internal carrier.
	NoiseLevel float32
	Seed       int64
}

func DefaultParams() Params {
	return Params{
		MasterGain: 0.9,
		Intensity:  1.5,
		PreGain:    25,
		NoiseLevel: 0.3,
		Seed:       1,
	}
}

type band struct {
	mod dsp.Biquad
	car dsp.Biquad
	env dsp.EnvelopeFollower
}

type Engine struct {
	sampleRate float32
	params     Params
	controls   synth.Params
	bands      [NumBands]band
	modHPF     dsp.Biquad
	rng        *rand.Rand

	mix       dsp.Smoother
	balance   dsp.Smoother
	q         dsp.Smoother
	threshold dsp.Smoother
	diffusion dsp.Smoother
	lastQ     float32
	lastDiff  float32

	carrier   []float32
	modulator []float32
	modPos    int
	modChunk  []float32
	level     float32

	// internal carrier
	noteID   synth.NoteHandle
	nextID   synth.NoteHandle
	noteFreq float32
	phase    float32
	gate     dsp.Smoother
}

func New(sampleRate int, params Params) *Engine {
	d := DefaultParams()
	if params.PreGain <= 0 {
		params.PreGain = d.PreGain
	}
	if params.Intensity <= 0 {
		params.Intensity = d.Intensity
	}
	if params.MasterGain <= 0 {
		params.MasterGain = d.MasterGain
	}
	e := &Engine{
		params: params,
		rng:    rand.New(rand.NewSource(params.Seed)),
		nextID: 1,
		noteID: synth.NoNote,
	}
	e.build(float32(sampleRate))
	e.UpdateParameters(synth.DefaultParams())
	e.snap()
	return e
}

func (e *Engine) build(sr float32) {
	e.sampleRate = sr
	e.modHPF.SetHighpass(150, 0.707, sr)
	for i := range e.bands {
		b := &e.bands[i]
		b.mod.SetBandpass(bandFreqs[i], 12, sr)
		b.car.SetBandpass(bandFreqs[i], 12, sr)
		b.env = dsp.NewEnvelopeFollower(sr)
	}
	e.lastQ = 12
	e.lastDiff = -1
	e.mix = dsp.NewSmoother(e.mix.Value(), 20, sr)
	e.balance = dsp.NewSmoother(e.balance.Value(), 20, sr)
	e.q = dsp.NewSmoother(12, 30, sr)
	e.threshold = dsp.NewSmoother(e.threshold.Value(), 20, sr)
	e.diffusion = dsp.NewSmoother(e.diffusion.Value(), 20, sr)
	e.gate = dsp.NewSmoother(0, 5, sr)
}

func (e *Engine) Prepare(sampleRate, framesPerBuffer int) {
	if sampleRate > 0 && float32(sampleRate) != e.sampleRate {
		e.build(float32(sampleRate))
		e.UpdateParameters(e.controls)
		e.snap()
	}
	if len(e.modChunk) < framesPerBuffer {
		e.modChunk = make([]float32, framesPerBuffer)
	}
}

// UpdateParameters maps pressure to the dry/wet blend, viscosity to the
// carrier source balance, resonance to band Q, turbulence to the gate
// threshold and diffusion to the envelope release.
func (e *Engine) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	e.controls = p
	e.mix.SetTarget(p.Pressure)
	e.balance.SetTarget(p.Viscosity)
	e.q.SetTarget(3 + p.Resonance*27)
	e.threshold.SetTarget(0.005 + p.Turbulence*0.145)
	e.diffusion.SetTarget(p.Diffusion)
}

func (e *Engine) snap() {
	e.mix.Snap()
	e.balance.Snap()
	e.threshold.Snap()
	e.diffusion.Snap()
}

// SetCarrier hands over the carrier for the next Process call. The slice is
// read, not retained past that call.
func (e *Engine) SetCarrier(carrier []float32) { e.carrier = carrier }

// SetModulator replaces the looping modulator and rewinds it. The engine
// keeps samples, so the caller must not modify it afterwards. A nil or
// empty slice removes it.
func (e *Engine) SetModulator(samples []float32) {
	e.modulator = samples
	e.modPos = 0
	if len(e.modulator) == 0 {
		e.level = 0
	}
}

// ModulatorLevel is the RMS of the modulator over the last block.
func (e *Engine) ModulatorLevel() float32 { return e.level }

// PlayNote sets the pitch of the internal carrier and opens its gate. The
// internal carrier is monophonic; a new note replaces the previous one.
func (e *Engine) PlayNote(freq, velocity float32) synth.NoteHandle {
	if !(freq > 0) {
		return synth.NoNote
	}
	id := e.nextID
	e.nextID++
	if e.nextID < 1 {
		e.nextID = 1
	}
	e.noteID = id
	e.noteFreq = freq
	e.gate.SetTarget(min(max(velocity, 0), 1))
	return id
}

func (e *Engine) StopNote(h synth.NoteHandle) {
	if h == e.noteID && h != synth.NoNote {
		e.noteID = synth.NoNote
		e.gate.SetTarget(0)
	}
}

func (e *Engine) Reset() {
	e.modPos = 0
	e.level = 0
	e.modHPF.Reset()
	for i := range e.bands {
		e.bands[i].mod.Reset()
		e.bands[i].car.Reset()
		e.bands[i].env.Reset()
	}
	e.noteID = synth.NoNote
	e.gate.SetTarget(0)
	e.gate.Snap()
	e.phase = 0
}

func (e *Engine) Process(dst []float32, frames int) {
	if frames*2 > len(dst) {
		frames = len(dst) / 2
	}
	if len(e.modChunk) < frames {
		e.modChunk = make([]float32, frames)
	}
	mod := e.modChunk[:frames]
	clear(mod)
	if n := len(e.modulator); n > 0 {
		for i := range mod {
			mod[i] = e.modulator[e.modPos]
			e.modPos++
			if e.modPos >= n {
				e.modPos = 0
			}
		}
		e.level = float32(math.Sqrt(float64(vek32.Dot(mod, mod) / float32(frames))))
	}

	sr := e.sampleRate
	for f := 0; f < frames; f++ {
		var tapped float32
		if f < len(e.carrier) {
			tapped = e.carrier[f]
		}
		bal := e.balance.Next()
		car := tapped*(1-bal) + e.internal(sr)*bal
		out := e.vocode(mod[f], car)
		out *= e.params.MasterGain
		dst[f*2] = out
		dst[f*2+1] = out
	}
	e.carrier = nil
}

// internal renders one sample of the saw and noise carrier.
func (e *Engine) internal(sr float32) float32 {
	g := e.gate.Next()
	if g < 1e-5 {
		return 0
	}
	e.phase += e.noteFreq / sr
	if e.phase >= 1 {
		e.phase -= float32(int(e.phase))
	}
	saw := 2*e.phase - 1
	n := e.rng.Float32()*2 - 1
	return (saw*(1-e.params.NoiseLevel) + n*e.params.NoiseLevel) * g
}

func (e *Engine) vocode(modSample, carSample float32) float32 {
	q := e.q.Next()
	threshold := e.threshold.Next()
	mix := e.mix.Next()
	diff := e.diffusion.Next()

	if abs(q-e.lastQ) > 0.1 {
		for i := range e.bands {
			e.bands[i].mod.SetBandpass(bandFreqs[i], q, e.sampleRate)
			e.bands[i].car.SetBandpass(bandFreqs[i], q, e.sampleRate)
		}
		e.lastQ = q
	}
	if abs(diff-e.lastDiff) > 0.05 {
		release := 20 + diff*480
		for i := range e.bands {
			e.bands[i].env.SetRelease(release)
		}
		e.lastDiff = diff
	}

	m := e.modHPF.Process(dsp.FastTanh(modSample * e.params.PreGain))
	var wet float32
	for i := range e.bands {
		b := &e.bands[i]
		env := b.env.Process(b.mod.Process(m))
		if env > threshold {
			boost := 1 + float32(i)/(NumBands-1)*3
			wet += b.car.Process(carSample) * env * boost
		}
	}
	wet *= e.params.Intensity * 4
	out := wet*mix + carSample*(1-mix)
	return max(-1, min(1, out))
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
