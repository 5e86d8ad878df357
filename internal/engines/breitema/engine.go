// Package breitema is a sixteen step probabilistic FM sequencer. Each active
// step fires with a probability bent by a slow "fog" LFO; notes come from a
// fixed eight note scale.
package breitema

import (
	"math"
	"math/rand"

	"github.com/tonetxo/fantagal-go/internal/effects"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

const twoPi = 2 * math.Pi

// Scale holds the step pitches in Hz; step i plays Scale[i%8].
var Scale = [8]float32{110, 123.47, 130.81, 146.83, 164.81, 174.61, 196, 220}

var (
	muineira  = [synth.NumSteps]bool{true, false, true, true, false, true, false, true, true, false, true, false, true, true, false, true}
	ribeirada = [synth.NumSteps]bool{true, false, false, true, true, false, true, false, true, false, true, true, false, false, true, true}
)

type Params struct {
	Voices    int
	VoiceGain float32
	Attack    float32
	Tail      float32 // seconds a voice outlives its nominal duration
	RoomMs    float64
	Seed      int64
}

func DefaultParams() Params {
	return Params{
		Voices:    8,
		VoiceGain: 0.5,
		Attack:    0.008,
		Tail:      0.2,
		RoomMs:    120,
		Seed:      1,
	}
}

type voice struct {
	active   bool
	id       synth.NoteHandle
	freq     float32
	gain     float32
	t        float32
	duration float32
	cph      float32
	mph      float32
}

type Engine struct {
	sampleRate int
	params     Params
	controls   synth.Params
	voices     []voice
	nextID     synth.NoteHandle
	rng        *rand.Rand

	tempo       float32
	fmDepth     float32
	fogDensity  float32
	fogMovement float32
	reverbMix   float32
	fogPhase    float32

	steps   [synth.NumSteps]bool
	probs   [synth.NumSteps]float32
	mode    synth.RhythmMode
	playing bool
	step    int
	clock   float64
	next    float64

	room   *effects.Delay
	shaper *effects.Distortion
}

func New(sampleRate int, params Params) *Engine {
	d := DefaultParams()
	if params.Voices <= 0 {
		params.Voices = d.Voices
	}
	if params.Attack <= 0 {
		params.Attack = d.Attack
	}
	if params.RoomMs <= 0 {
		params.RoomMs = d.RoomMs
	}
	e := &Engine{
		sampleRate: sampleRate,
		params:     params,
		voices:     make([]voice, params.Voices),
		nextID:     1,
		rng:        rand.New(rand.NewSource(params.Seed)),
		room:       effects.NewDelay(sampleRate, params.RoomMs, 0.65, 0, 1),
		shaper:     effects.NewDistortion(sampleRate, 0.8, 1, 0),
	}
	for i := range e.probs {
		e.probs[i] = 0.5
	}
	e.UpdateParameters(synth.DefaultParams())
	e.GeneratePattern()
	return e
}

func (e *Engine) Prepare(sampleRate, framesPerBuffer int) {
	if sampleRate > 0 && sampleRate != e.sampleRate {
		e.sampleRate = sampleRate
		e.room = effects.NewDelay(sampleRate, e.params.RoomMs, 0.65, 0, 1)
		e.shaper = effects.NewDistortion(sampleRate, 0.8, 1, 0)
		e.UpdateParameters(e.controls)
	}
}

// UpdateParameters maps pressure to tempo, resonance to FM depth and room
// feedback, viscosity to fog density, turbulence to fog movement and
// diffusion to the room level.
func (e *Engine) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	e.controls = p
	e.tempo = 60 + p.Pressure*120
	e.fmDepth = p.Resonance * 500
	e.fogDensity = 0.2 + p.Viscosity*0.8
	e.fogMovement = p.Turbulence * 2
	e.reverbMix = p.Diffusion * 0.6
	e.room.SetFeedback(0.5 + p.Resonance*0.3)
}

// PlayNote fires a one-shot FM note outside the pattern. It returns NoNote
// when every voice is busy.
func (e *Engine) PlayNote(freq, velocity float32) synth.NoteHandle {
	if !(freq > 0) {
		return synth.NoNote
	}
	v := e.fire(freq, e.params.VoiceGain*min(max(velocity, 0), 1))
	if v == nil {
		return synth.NoNote
	}
	return v.id
}

// StopNote shortens the note so it fades out from its current position.
func (e *Engine) StopNote(h synth.NoteHandle) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.id == h && v.t < v.duration {
			v.duration = max(v.t, e.params.Attack)
		}
	}
}

// Reset stops the sequencer and silences every voice. The pattern is kept.
func (e *Engine) Reset() {
	e.playing = false
	e.step = 0
	e.clock, e.next = 0, 0
	for i := range e.voices {
		e.voices[i] = voice{}
	}
	e.room.Reset()
	e.shaper.Reset()
}

func (e *Engine) ToggleStep(step int) {
	if step >= 0 && step < synth.NumSteps {
		e.steps[step] = !e.steps[step]
	}
}

// SetPlaying starts or stops the step clock. Starting from a stopped state
// rewinds to step 0.
func (e *Engine) SetPlaying(playing bool) {
	if playing && !e.playing {
		e.step = 0
		e.clock, e.next = 0, 0
	}
	e.playing = playing
}

// SetRhythmMode switches the step grid and regenerates the pattern.
func (e *Engine) SetRhythmMode(mode synth.RhythmMode) {
	if !mode.Valid() {
		return
	}
	e.mode = mode
	e.GeneratePattern()
}

// GeneratePattern draws a new pattern. Muineira and ribeirada follow their
// templates with random omissions; libre is fully random.
func (e *Engine) GeneratePattern() {
	var tmpl *[synth.NumSteps]bool
	switch e.mode {
	case synth.RhythmMuineira:
		tmpl = &muineira
	case synth.RhythmRibeirada:
		tmpl = &ribeirada
	}
	for i := range e.steps {
		if tmpl == nil {
			e.probs[i] = 0.3 + e.rng.Float32()*0.7
			e.steps[i] = e.rng.Float32() > 0.5
			continue
		}
		var p float32
		if tmpl[i] {
			p = 0.7 + e.rng.Float32()*0.3
		} else {
			p = e.rng.Float32() * 0.2
		}
		e.probs[i] = p
		e.steps[i] = p > 0.4
	}
}

func (e *Engine) SequencerState() synth.SequencerState {
	return synth.SequencerState{
		CurrentStep:   e.step,
		RhythmMode:    e.mode,
		Playing:       e.playing,
		Probabilities: e.probs,
		Steps:         e.steps,
		FogDensity:    e.fogDensity,
		FogMovement:   e.fogMovement,
		FMDepth:       e.fmDepth,
	}
}

func (e *Engine) stepsPerBeat() float64 {
	if e.mode == synth.RhythmMuineira {
		return 3
	}
	return 4
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
	dt := 1 / sr
	for f := 0; f < frames; f++ {
		if e.playing {
			if e.clock >= e.next {
				e.schedule(e.step)
				e.next += 60 / float64(e.tempo) / e.stepsPerBeat() * float64(sr)
				e.step = (e.step + 1) % synth.NumSteps
			}
			e.clock++
		}

		e.fogPhase += (0.1 + e.fogMovement*1.9) * dt
		if e.fogPhase >= 1 {
			e.fogPhase--
		}

		var mix float32
		for i := range e.voices {
			v := &e.voices[i]
			if !v.active {
				continue
			}
			mix += e.render(v, sr)
			v.t += dt
			if v.t >= v.duration+e.params.Tail {
				v.active = false
			}
		}

		tail := e.room.ProcessMono(mix * 0.4)
		out := e.shaper.ProcessMono(mix*(1.1-e.reverbMix*0.5) + tail*e.reverbMix)
		dst[f*2] = out
		dst[f*2+1] = out
	}
}

// schedule decides whether step fires. Fog density lifts every step toward
// certainty and the fog LFO wobbles the result.
func (e *Engine) schedule(step int) {
	base := e.probs[step]
	wobble := float32(math.Sin(twoPi*float64(e.fogPhase))) * (0.1 + e.fogMovement*0.3)
	p := base + (1-base)*(e.fogDensity-0.2)/0.8 + wobble
	p = max(0.05, min(1, p))
	if e.steps[step] && e.rng.Float32() < p {
		e.fire(Scale[step%len(Scale)], e.params.VoiceGain)
	}
}

// fire starts a voice lasting half a beat, or returns nil when none is free.
func (e *Engine) fire(freq, gain float32) *voice {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active {
			continue
		}
		*v = voice{
			active:   true,
			id:       e.nextID,
			freq:     freq,
			gain:     gain,
			duration: 60 / e.tempo / 2,
		}
		e.nextID++
		if e.nextID < 1 {
			e.nextID = 1
		}
		return v
	}
	return nil
}

func (e *Engine) render(v *voice, sr float32) float32 {
	v.cph += v.freq / sr
	if v.cph >= 1 {
		v.cph--
	}
	v.mph += v.freq * 2 / sr
	if v.mph >= 1 {
		v.mph--
	}
	mod := float32(math.Sin(twoPi*float64(v.mph))) * e.fmDepth
	out := float32(math.Sin(twoPi*float64(v.cph) + float64(mod/v.freq)))
	var env float32
	if a := e.params.Attack; v.t < a {
		env = v.t / a
	} else {
		env = float32(math.Exp(float64(-(v.t - a) / v.duration * 4)))
	}
	return out * env * v.gain
}
