package dsp

import "math"

// EnvelopeFollower tracks the rectified level of a signal with separate
// attack and release times.
type EnvelopeFollower struct {
	sampleRate float32
	attack     float32
	release    float32
	level      float32
}

// NewEnvelopeFollower returns a follower with 2 ms attack and 30 ms release.
func NewEnvelopeFollower(sampleRate float32) EnvelopeFollower {
	e := EnvelopeFollower{sampleRate: sampleRate}
	e.SetAttack(2)
	e.SetRelease(30)
	return e
}

func (e *EnvelopeFollower) SetAttack(ms float32) {
	e.attack = timeCoeff(ms, e.sampleRate)
}

func (e *EnvelopeFollower) SetRelease(ms float32) {
	e.release = timeCoeff(ms, e.sampleRate)
}

func (e *EnvelopeFollower) Process(x float32) float32 {
	r := float32(math.Abs(float64(x)))
	if r > e.level {
		e.level = e.attack*e.level + (1-e.attack)*r
	} else {
		e.level = e.release*e.level + (1-e.release)*r
	}
	return e.level
}

func (e *EnvelopeFollower) Level() float32 { return e.level }

func (e *EnvelopeFollower) Reset() { e.level = 0 }

// Smoother glides a control value toward its target with a one pole filter.
type Smoother struct {
	current float32
	target  float32
	alpha   float32
}

// NewSmoother starts at initial with the given time constant.
func NewSmoother(initial, ms, sampleRate float32) Smoother {
	return Smoother{current: initial, target: initial, alpha: timeCoeff(ms, sampleRate)}
}

func (s *Smoother) SetTarget(v float32) { s.target = v }

// Next advances one sample.
func (s *Smoother) Next() float32 {
	s.current = s.alpha*s.current + (1-s.alpha)*s.target
	return s.current
}

func (s *Smoother) Value() float32 { return s.current }

// Snap jumps to the target.
func (s *Smoother) Snap() { s.current = s.target }

func timeCoeff(ms, sampleRate float32) float32 {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	return float32(math.Exp(-1 / (float64(sampleRate) * float64(ms) * 0.001)))
}

// FastTanh is a rational tanh approximation, exact at 0 and saturating at ±3.
func FastTanh(x float32) float32 {
	if x < -3 {
		return -1
	}
	if x > 3 {
		return 1
	}
	return x * (27 + x*x) / (27 + 9*x*x)
}
