// Package criosfera is a polyphonic pad: two detuned saws per voice through
// a resonant two pole low-pass, a slow sine LFO on pitch and a reverb tail.
package criosfera

import (
	"math"

	"github.com/tonetxo/fantagal-go/internal/dsp"
	"github.com/tonetxo/fantagal-go/internal/effects"
	"github.com/tonetxo/fantagal-go/internal/lfo"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

type Params struct {
	Voices     int
	MasterGain float32
	Detune     float32 // ratio offset of the second saw
	DecaySec   float32
	SustainLvl float32
	RoomSize   float32
}

func DefaultParams() Params {
	return Params{
		Voices:     8,
		MasterGain: 0.7,
		Detune:     0.005,
		DecaySec:   0.3,
		SustainLvl: 0.7,
		RoomSize:   0.8,
	}
}

type voice struct {
	active   bool
	id       synth.NoteHandle
	age      int
	freq     float32
	velocity float32
	phase1   float32
	phase2   float32
	env      dsp.ADSR
}

type Engine struct {
	sampleRate int
	params     Params
	controls   synth.Params
	voices     []voice
	nextID     synth.NoteHandle

	cutoff    float32
	resonance float32
	lfoDepth  float32
	attack    float32
	release   float32

	// filter state per channel: two cascaded one pole stages
	filt   [2][2]float32
	lfo    lfo.LFO
	reverb *effects.Reverb
}

func New(sampleRate int, params Params) *Engine {
	if params.Voices <= 0 {
		params.Voices = 8
	}
	e := &Engine{
		sampleRate: sampleRate,
		params:     params,
		voices:     make([]voice, params.Voices),
		nextID:     1,
		reverb:     effects.NewReverb(sampleRate, params.RoomSize, 0.55, 0.3),
	}
	e.UpdateParameters(synth.DefaultParams())
	return e
}

func (e *Engine) Prepare(sampleRate, framesPerBuffer int) {
	if sampleRate > 0 && sampleRate != e.sampleRate {
		e.sampleRate = sampleRate
		e.reverb = effects.NewReverb(sampleRate, e.params.RoomSize, 0.55, 0.3)
		e.UpdateParameters(e.controls)
	}
	e.filt = [2][2]float32{}
	e.lfo.Reset()
}

// UpdateParameters maps pressure to cutoff, resonance to filter feedback,
// viscosity to envelope times, turbulence to the LFO and diffusion to the
// reverb.
func (e *Engine) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	e.controls = p
	e.cutoff = 200 + p.Pressure*7800
	e.resonance = p.Resonance * 0.95
	e.attack = 0.01 + (1-p.Viscosity)*0.5
	e.release = 0.1 + (1-p.Viscosity)*1.5
	e.lfoDepth = p.Turbulence
	e.lfo.Set(1, 0.2+float64(p.Turbulence)*2, lfo.Sine)
	e.reverb.SetWet(p.Diffusion * 0.6)
	e.reverb.SetFeedback(0.3 + p.Diffusion*0.5)
	for i := range e.voices {
		e.voices[i].env.Attack = e.attack
		e.voices[i].env.Release = e.release
	}
}

func (e *Engine) PlayNote(freq, velocity float32) synth.NoteHandle {
	if !(freq > 0) {
		return synth.NoNote
	}
	slot := e.stealVoice()
	id := e.nextID
	e.nextID++
	if e.nextID < 1 {
		e.nextID = 1
	}
	v := &e.voices[slot]
	*v = voice{
		active:   true,
		id:       id,
		freq:     freq,
		velocity: velocity,
		phase2:   0.25,
		env: dsp.ADSR{
			Attack:  e.attack,
			Decay:   e.params.DecaySec,
			Sustain: e.params.SustainLvl,
			Release: e.release,
		},
	}
	v.env.NoteOn()
	return id
}

func (e *Engine) StopNote(h synth.NoteHandle) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == h {
			v.env.NoteOff()
			return
		}
	}
}

func (e *Engine) Reset() {
	for i := range e.voices {
		e.voices[i].active = false
		e.voices[i].env.Reset()
	}
	e.filt = [2][2]float32{}
	e.reverb.Reset()
	e.lfo.Reset()
}

// stealVoice prefers a free voice, then the oldest releasing one, then the
// first voice.
func (e *Engine) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	best, bestAge := -1, -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.env.Stage() == dsp.StageRelease && v.age > bestAge {
			best, bestAge = i, v.age
		}
	}
	if best >= 0 {
		return best
	}
	return 0
}

func (e *Engine) Process(dst []float32, frames int) {
	if frames*2 > len(dst) {
		frames = len(dst) / 2
	}
	sr := float32(e.sampleRate)
	if sr <= 0 {
		clear(dst[:frames*2])
		return
	}
	gain := e.params.MasterGain
	detune := 1 + e.params.Detune
	for f := 0; f < frames; f++ {
		mod := 1 + float32(e.lfo.Next(float64(sr)))*e.lfoDepth*0.02
		var sum float32
		for i := range e.voices {
			v := &e.voices[i]
			if !v.active {
				continue
			}
			env := v.env.Next(sr)
			if !v.env.Active() {
				v.active = false
				continue
			}
			v.age++
			osc := (2*v.phase1-1)*0.6 + (2*v.phase2-1)*0.4
			sum += osc * v.velocity * env
			v.phase1 = wrap(v.phase1 + v.freq*mod/sr)
			v.phase2 = wrap(v.phase2 + v.freq*detune*mod/sr)
		}
		l := e.filter(sum, 0, sr)
		r := e.filter(sum, 1, sr)
		l, r = e.reverb.Process(l, r)
		dst[f*2] = effects.SoftClip(l * gain)
		dst[f*2+1] = effects.SoftClip(r * gain)
	}
}

func (e *Engine) filter(in float32, ch int, sr float32) float32 {
	norm := clamp(e.cutoff/sr, 0.001, 0.49)
	k := float32(2 * math.Sin(math.Pi*float64(norm)))
	st := &e.filt[ch]
	in = clamp(in-st[1]*e.resonance*4, -1, 1)
	st[0] += k * (in - st[0])
	st[1] += k * (st[0] - st[1])
	return st[1]
}

func wrap(p float32) float32 {
	if p >= 1 {
		p -= float32(int(p))
	}
	return p
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
