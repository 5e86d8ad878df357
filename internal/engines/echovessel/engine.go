// Package echovessel is a chip-style voice engine: band-limited pulse
// voices above a split point, triangle below, each with an ADSR, followed
// by a chorus and a ping-pong echo.
package echovessel

import (
	"math"

	"github.com/tonetxo/fantagal-go/internal/effects"
	"github.com/tonetxo/fantagal-go/internal/lfo"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

const twoPi = math.Pi * 2

type Params struct {
	Voices      int
	MasterGain  float64
	DecaySec    float64
	SustainLvl  float64
	StepLevels  int
	SplitHz     float64 // notes below use the triangle wave
	VelocityAmp float64
	EchoMs      float64
}

func DefaultParams() Params {
	return Params{
		Voices:      8,
		MasterGain:  0.3,
		DecaySec:    0.2,
		SustainLvl:  0.6,
		StepLevels:  16,
		SplitHz:     220,
		VelocityAmp: 0.85,
		EchoMs:      375,
	}
}

type waveType int

const (
	wavePulse waveType = iota
	waveTriangle
)

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type voice struct {
	active   bool
	id       synth.NoteHandle
	age      int
	wave     waveType
	freq     float64
	phase    float64
	velocity float64
	env      float64
	envState envState
	pan      float64
}

type Engine struct {
	sampleRate float64
	params     Params
	controls   synth.Params
	voices     []voice
	nextID     synth.NoteHandle
	nextPan    int

	duty      float64
	attackSec float64
	release   float64
	lpfAlpha  float64
	lpfL      float64
	lpfR      float64
	dcInL     float64
	dcOutL    float64
	dcInR     float64
	dcOutR    float64
	vibrato   lfo.LFO

	chorus *effects.Chorus
	echo   *effects.Delay
	fx     *effects.Chain
}

func New(sampleRate int, params Params) *Engine {
	d := DefaultParams()
	if params.Voices <= 0 {
		params.Voices = d.Voices
	}
	if params.StepLevels <= 1 {
		params.StepLevels = d.StepLevels
	}
	if params.EchoMs <= 0 {
		params.EchoMs = d.EchoMs
	}
	if params.DecaySec <= 0 {
		params.DecaySec = d.DecaySec
	}
	e := &Engine{
		params: params,
		voices: make([]voice, params.Voices),
		nextID: 1,
	}
	e.build(sampleRate)
	e.UpdateParameters(synth.DefaultParams())
	return e
}

func (e *Engine) build(sampleRate int) {
	e.sampleRate = float64(sampleRate)
	e.chorus = effects.NewChorus(sampleRate, 12, 0.2, 3, 0.8, 0.3)
	e.echo = effects.NewDelay(sampleRate, e.params.EchoMs, 0.4, 0.5, 0.25)
	e.fx = effects.NewChain(e.chorus, e.echo)
}

func (e *Engine) Prepare(sampleRate, framesPerBuffer int) {
	if sampleRate > 0 && float64(sampleRate) != e.sampleRate {
		e.build(sampleRate)
		e.UpdateParameters(e.controls)
	}
}

// UpdateParameters maps pressure to pulse width and brightness, resonance to
// echo feedback, viscosity to envelope times, turbulence to vibrato and
// diffusion to the chorus and echo levels.
func (e *Engine) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	e.controls = p
	e.duty = 0.125 + float64(p.Pressure)*0.375
	cutoff := 800 + float64(p.Pressure)*11200
	if e.sampleRate > 0 && cutoff < e.sampleRate/2 {
		rc := 1.0 / (twoPi * cutoff)
		dt := 1.0 / e.sampleRate
		e.lpfAlpha = dt / (rc + dt)
	} else {
		e.lpfAlpha = 0
	}
	e.echo.SetFeedback(0.1 + p.Resonance*0.8)
	e.attackSec = 0.002 + float64(1-p.Viscosity)*0.3
	e.release = 0.05 + float64(1-p.Viscosity)*1.2
	e.vibrato.Set(float64(p.Turbulence)*0.5, 5, lfo.Triangle)
	e.chorus.SetWet(p.Diffusion * 0.6)
	e.echo.SetWet(p.Diffusion * 0.5)
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
	wave := wavePulse
	if float64(freq) < e.params.SplitHz {
		wave = waveTriangle
	}
	// Alternate voices across the stereo field.
	pan := 24.0
	if e.nextPan%2 == 1 {
		pan = -24
	}
	e.nextPan++
	e.voices[slot] = voice{
		active:   true,
		id:       id,
		wave:     wave,
		freq:     float64(freq),
		velocity: clamp(float64(velocity), 0, 1),
		envState: envAttack,
		pan:      pan,
	}
	return id
}

func (e *Engine) StopNote(h synth.NoteHandle) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == h && v.envState != envRelease {
			v.envState = envRelease
		}
	}
}

func (e *Engine) Reset() {
	for i := range e.voices {
		e.voices[i] = voice{}
	}
	e.lpfL, e.lpfR = 0, 0
	e.dcInL, e.dcOutL, e.dcInR, e.dcOutR = 0, 0, 0, 0
	e.vibrato.Reset()
	e.fx.Reset()
}

func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (e *Engine) Process(dst []float32, frames int) {
	if frames*2 > len(dst) {
		frames = len(dst) / 2
	}
	if e.sampleRate <= 0 {
		clear(dst[:frames*2])
		return
	}
	for f := 0; f < frames; f++ {
		l, r := e.renderFrame()
		fl, fr := e.fx.Process(float32(l), float32(r))
		dst[f*2] = float32(clamp(float64(fl), -1, 1))
		dst[f*2+1] = float32(clamp(float64(fr), -1, 1))
	}
}

func (e *Engine) renderFrame() (float64, float64) {
	freqMul := 1.0
	if m := e.vibrato.Next(e.sampleRate); m != 0 {
		freqMul = math.Pow(2, m/12.0)
	}
	var l, r float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		v.age++
		env := e.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := e.renderWave(v, v.freq*freqMul)
		level := quantize(env*(0.15+v.velocity*e.params.VelocityAmp), e.params.StepLevels)
		sig := sample * level * e.params.MasterGain
		angle := ((v.pan + 64.0) / 128.0) * (math.Pi / 2.0)
		l += sig * math.Cos(angle)
		r += sig * math.Sin(angle)
	}
	l = dcBlock(l, &e.dcInL, &e.dcOutL)
	r = dcBlock(r, &e.dcInR, &e.dcOutR)
	if e.lpfAlpha > 0 {
		e.lpfL += e.lpfAlpha * (l - e.lpfL)
		e.lpfR += e.lpfAlpha * (r - e.lpfR)
		l, r = e.lpfL, e.lpfR
	}
	return l, r
}

func dcBlock(x float64, prevIn, prevOut *float64) float64 {
	const r = 0.995
	y := x - *prevIn + r**prevOut
	*prevIn = x
	*prevOut = y
	return y
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (e *Engine) renderWave(v *voice, freq float64) float64 {
	dt := freq / e.sampleRate
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	if v.wave == waveTriangle {
		return 2*math.Abs(2*v.phase-1) - 1
	}
	out := -1.0
	if v.phase < e.duty {
		out = 1
	}
	out += polyBLEP(v.phase, dt)
	out -= polyBLEP(math.Mod(v.phase-e.duty+1, 1), dt)
	return out
}

// stealVoice prefers an inactive slot, then the oldest releasing voice,
// then the oldest voice.
func (e *Engine) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	oldestRelease, oldestReleaseAge := -1, -1
	oldestActive, oldestActiveAge := 0, -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease, oldestReleaseAge = i, v.age
		}
		if v.age > oldestActiveAge {
			oldestActive, oldestActiveAge = i, v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
}

func (e *Engine) advanceEnv(v *voice) float64 {
	switch v.envState {
	case envAttack:
		v.env += 1.0 / (e.attackSec * e.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		v.env -= (1 - e.params.SustainLvl) / (e.params.DecaySec * e.sampleRate)
		if v.env <= e.params.SustainLvl {
			v.env = e.params.SustainLvl
			v.envState = envSustain
		}
	case envRelease:
		v.env -= 1.0 / (e.release * e.sampleRate)
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func quantize(v float64, steps int) float64 {
	if steps <= 1 {
		return v
	}
	n := math.Round(v*float64(steps-1)) / float64(steps-1)
	return clamp(n, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
