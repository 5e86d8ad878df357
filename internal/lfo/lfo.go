// Package lfo provides the slow modulators shared by a whole engine: pad
// drift, vibrato and chorus sweep.
package lfo

import (
	"math"
	"math/rand"
)

// Shape selects the LFO waveform.
type Shape int

const (
	Saw Shape = iota
	Square
	Triangle
	Random
	Sine
)

// LFO produces one modulation value per sample in [-depth, +depth]. Phase
// runs over [0, 1).
type LFO struct {
	depth float64
	rate  float64 // Hz
	shape Shape
	phase float64
	held  float64
	rng   *rand.Rand
}

// Set configures depth, rate and shape. An unknown shape becomes Triangle.
func (l *LFO) Set(depth, rateHz float64, shape Shape) {
	if shape < Saw || shape > Sine {
		shape = Triangle
	}
	l.depth = depth
	l.rate = rateHz
	l.shape = shape
}

// Seed makes the Random shape reproducible.
func (l *LFO) Seed(seed int64) {
	l.rng = rand.New(rand.NewSource(seed))
}

// SetPhase moves the cycle position; p is wrapped into [0, 1).
func (l *LFO) SetPhase(p float64) {
	l.phase = p - math.Floor(p)
}

func (l *LFO) Phase() float64 { return l.phase }

// Next returns the value at the current phase and advances one sample. It
// returns 0 while depth or rate is zero, without advancing.
func (l *LFO) Next(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	v := l.shapeAt(l.phase) * l.depth
	l.phase += l.rate / sampleRate
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
		if l.shape == Random {
			l.hold()
		}
	}
	return v
}

func (l *LFO) shapeAt(p float64) float64 {
	switch l.shape {
	case Saw:
		return 1 - 2*p
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Random:
		return l.held
	case Sine:
		return math.Sin(2 * math.Pi * p)
	default:
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	}
}

func (l *LFO) hold() {
	if l.rng == nil {
		l.Seed(1)
	}
	l.held = l.rng.Float64()*2 - 1
}

// Active reports whether Next produces anything.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rate != 0
}

// Reset returns to phase 0. The random generator keeps its sequence.
func (l *LFO) Reset() {
	l.phase = 0
	l.held = 0
}
