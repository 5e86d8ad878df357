// Package gearheart turns gear rotation into percussion. Every connected
// gear fires a drum hit each time its angle wraps a full turn; the drum
// depends on the gear's role and material. The gear table starts empty and
// is filled by UpdateGear.
package gearheart

import (
	"math"
	"math/rand"

	"github.com/tonetxo/fantagal-go/internal/dsp"
	"github.com/tonetxo/fantagal-go/internal/effects"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

const twoPi = 2 * math.Pi

type Params struct {
	Voices   int
	MaxGears int
	// FrameRate is the rate the gear speeds are expressed against, in
	// frames per second.
	FrameRate float32
	RoomMs    float64
	Seed      int64
}

func DefaultParams() Params {
	return Params{
		Voices:    16,
		MaxGears:  32,
		FrameRate: 60,
		RoomMs:    100,
		Seed:      1,
	}
}

type drum int

const (
	drumKick drum = iota
	drumSnare
	drumHihat
	drumTom
)

type voice struct {
	active  bool
	id      synth.NoteHandle
	kind    drum
	freq    float32
	gain    float32
	t       float32
	decay   float32
	phase   float32
	phase2  float32
	noiseHP dsp.OnePole
}

// gear keeps its angle in [0, 2π). armed gears fire on their first motion.
type gear struct {
	state synth.GearState
	armed bool
}

type Engine struct {
	sampleRate int
	params     Params
	controls   synth.Params
	voices     []voice
	gears      []gear
	nextID     synth.NoteHandle
	rng        *rand.Rand

	room     *effects.Delay
	shaper   *effects.Distortion
	roomSend float32
}

func New(sampleRate int, params Params) *Engine {
	d := DefaultParams()
	if params.Voices <= 0 {
		params.Voices = d.Voices
	}
	if params.MaxGears <= 0 {
		params.MaxGears = d.MaxGears
	}
	if params.FrameRate <= 0 {
		params.FrameRate = d.FrameRate
	}
	if params.RoomMs <= 0 {
		params.RoomMs = d.RoomMs
	}
	e := &Engine{
		sampleRate: sampleRate,
		params:     params,
		voices:     make([]voice, params.Voices),
		gears:      make([]gear, 0, params.MaxGears),
		nextID:     1,
		rng:        rand.New(rand.NewSource(params.Seed)),
		room:       effects.NewDelay(sampleRate, params.RoomMs, 0.6, 0, 1),
		shaper:     effects.NewDistortion(sampleRate, 0.55, 1, 0),
	}
	e.UpdateParameters(synth.DefaultParams())
	return e
}

func (e *Engine) Prepare(sampleRate, framesPerBuffer int) {
	if sampleRate > 0 && sampleRate != e.sampleRate {
		e.sampleRate = sampleRate
		e.room = effects.NewDelay(sampleRate, e.params.RoomMs, 0.6, 0, 1)
		e.shaper = effects.NewDistortion(sampleRate, 0.55, 1, 0)
		e.UpdateParameters(e.controls)
	}
}

// UpdateParameters maps pressure to output drive, resonance to the room,
// viscosity to decay length, turbulence to decay jitter and diffusion to
// tom noise.
func (e *Engine) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	e.controls = p
	e.room.SetFeedback(0.4 + p.Resonance*0.45)
	e.roomSend = p.Resonance * 0.45
	e.shaper.SetGains(0.35+p.Pressure*0.4, 1)
}

// UpdateGear replaces motion fields of a gear. The angle is owned by the
// engine and is not overwritten. Unknown ids are added up to MaxGears and
// fire on their first motion.
func (e *Engine) UpdateGear(g synth.GearState) {
	if cur := e.find(g.ID); cur != nil {
		cur.state.Speed = g.Speed
		cur.state.Connected = g.Connected
		cur.state.Material = g.Material
		cur.state.Radius = g.Radius
		cur.state.Depth = g.Depth
		if g.Teeth > 0 {
			cur.state.Teeth = g.Teeth
		}
		return
	}
	if g.ID < 0 || len(e.gears) >= e.params.MaxGears {
		return
	}
	g.Angle = wrapAngle(g.Angle)
	e.gears = append(e.gears, gear{state: g, armed: true})
}

func (e *Engine) UpdateGearPosition(id int, x, y float32) {
	if cur := e.find(id); cur != nil {
		cur.state.X, cur.state.Y = x, y
	}
}

func (e *Engine) GearStates(dst []synth.GearState) int {
	n := 0
	for i := range e.gears {
		if n >= len(dst) {
			break
		}
		dst[n] = e.gears[i].state
		n++
	}
	return n
}

// PlayNote fires a tom at freq. Drum voices decay on their own, so the
// handle is only useful for identification.
func (e *Engine) PlayNote(freq, velocity float32) synth.NoteHandle {
	if !(freq > 0) {
		return synth.NoNote
	}
	v := e.trigger(drumTom, velocity, 0)
	v.freq = freq
	return v.id
}

func (e *Engine) StopNote(synth.NoteHandle) {}

func (e *Engine) Reset() {
	for i := range e.voices {
		e.voices[i] = voice{}
	}
	for i := range e.gears {
		e.gears[i].armed = false
	}
	e.room.Reset()
	e.shaper.Reset()
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
	perSample := e.params.FrameRate / sr
	for f := 0; f < frames; f++ {
		for i := range e.gears {
			g := &e.gears[i]
			if !g.state.Connected || abs(g.state.Speed) <= 0.0001 {
				continue
			}
			a := g.state.Angle + g.state.Speed*perSample
			wrapped := a >= twoPi || a < 0
			if wrapped {
				a = wrapAngle(a)
			}
			g.state.Angle = a
			if wrapped || g.armed {
				g.armed = false
				e.triggerGear(g.state)
			}
		}

		var mix float32
		for i := range e.voices {
			if e.voices[i].active {
				mix += e.voice(&e.voices[i], sr)
			}
		}
		tail := e.room.ProcessMono(mix * 0.3)
		out := e.shaper.ProcessMono(mix + tail*e.roomSend)
		dst[f*2] = out
		dst[f*2+1] = out
	}
}

func (e *Engine) triggerGear(g synth.GearState) {
	gain := float32(math.Max(0.2, math.Pow(0.85, float64(g.Depth))))
	scale := 0.2 + e.controls.Viscosity*1.5 + e.noise()*e.controls.Turbulence*0.4
	if scale < 0.1 {
		scale = 0.1
	}
	switch {
	case g.ID == 0:
		e.trigger(drumKick, gain, 0.3*max(0.5, scale))
	case g.Material == synth.MaterialPlatinum:
		e.trigger(drumHihat, gain, 0.05*scale)
	case g.Material == synth.MaterialGold:
		e.trigger(drumSnare, gain, 0.15*scale)
	default:
		v := e.trigger(drumTom, gain, 0.2*scale)
		norm := clamp(1-(g.Radius-20)/100, 0, 1)
		v.freq = 80 + norm*200
	}
}

// trigger claims a free voice, or voice 0 when all are busy. A zero decay
// uses the tom default for the current controls.
func (e *Engine) trigger(kind drum, gain, decay float32) *voice {
	slot := 0
	for i := range e.voices {
		if !e.voices[i].active {
			slot = i
			break
		}
	}
	if decay <= 0 {
		decay = 0.2 * max(0.1, 0.2+e.controls.Viscosity*1.5)
	}
	id := e.nextID
	e.nextID++
	if e.nextID < 1 {
		e.nextID = 1
	}
	v := &e.voices[slot]
	*v = voice{active: true, id: id, kind: kind, gain: gain, decay: decay}
	return v
}

func (e *Engine) voice(v *voice, sr float32) float32 {
	v.t += 1 / sr
	var s float32
	switch v.kind {
	case drumKick:
		s = e.kick(v, sr)
	case drumSnare:
		s = e.snare(v, sr)
	case drumHihat:
		s = e.hihat(v, sr)
	default:
		s = e.tom(v, sr)
	}
	if v.t > v.decay {
		v.active = false
	}
	return s
}

func (e *Engine) kick(v *voice, sr float32) float32 {
	freq := 38 + 82*exp(-v.t*35)
	v.phase = wrap(v.phase + freq/sr)
	sine := sin(v.phase)
	click := 60 + 190*exp(-v.t*80)
	v.phase2 = wrap(v.phase2 + click/sr)
	tri := 4*abs(v.phase2-0.5) - 1
	body := exp(-v.t * 4 / v.decay)
	clickEnv := exp(-v.t * 150)
	return float32(math.Tanh(float64(sine*body*2.8+tri*clickEnv*1.8))) * v.gain
}

func (e *Engine) snare(v *voice, sr float32) float32 {
	n := v.noiseHP.Highpass(e.noise(), 1750, sr)
	tone := 220 + 30*exp(-v.t*20)
	v.phase = wrap(v.phase + tone/sr)
	tri := 4*abs(v.phase-0.5) - 1
	return (n*attackExp(v.t, 0.02, 10)*0.6 + tri*attackExp(v.t, 0.003, 30)*0.4) * v.gain
}

func (e *Engine) hihat(v *voice, sr float32) float32 {
	n := v.noiseHP.Highpass(e.noise(), 10000, sr)
	return n * attackExp(v.t, 0.003, 60) * v.gain
}

func (e *Engine) tom(v *voice, sr float32) float32 {
	sweep := min(1, v.t/0.1)
	freq := v.freq * (1 - 0.25*sweep)
	v.phase = wrap(v.phase + freq/sr)
	env := attackExp(v.t, 0.003, 3/v.decay)
	body := 1 + max(0, 1-v.freq/500)*1.5
	out := sin(v.phase) * env * body * v.gain
	if d := e.controls.Diffusion; d > 0.1 {
		out += v.noiseHP.Highpass(e.noise()*d*0.3*env, 1200, sr)
	}
	return out
}

func (e *Engine) noise() float32 { return e.rng.Float32()*2 - 1 }

func (e *Engine) find(id int) *gear {
	for i := range e.gears {
		if e.gears[i].state.ID == id {
			return &e.gears[i]
		}
	}
	return nil
}

// attackExp is a linear attack of length a followed by exp(-rate*(t-a)).
func attackExp(t, a, rate float32) float32 {
	if t < a {
		return t / a
	}
	return exp(-(t - a) * rate)
}

// wrapAngle maps a into [0, 2π).
func wrapAngle(a float32) float32 {
	w := float32(math.Mod(float64(a), twoPi))
	if w < 0 {
		w += twoPi
	}
	if w >= twoPi {
		w = 0
	}
	return w
}

func exp(x float32) float32 { return float32(math.Exp(float64(x))) }

func sin(phase float32) float32 { return float32(math.Sin(twoPi * float64(phase))) }

func wrap(p float32) float32 {
	if p >= 1 {
		p -= float32(int(p))
	}
	return p
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
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
