package effects

import "math"

const (
	clipThreshold = 0.5
	// clipCeiling is the largest float32 below 1.
	clipCeiling = float32(0.99999994)
)

// SoftClip passes |x| <= 0.5 unchanged and bends larger values with
// 0.5 + 0.5*tanh((|x|-0.5)*2), keeping the result strictly inside (-1, 1).
func SoftClip(x float32) float32 {
	if x != x {
		return 0
	}
	a := x
	if a < 0 {
		a = -a
	}
	if a <= clipThreshold {
		return x
	}
	y := float32(clipThreshold + clipThreshold*math.Tanh(float64(a-clipThreshold)*2))
	if y > clipCeiling {
		y = clipCeiling
	}
	if x < 0 {
		return -y
	}
	return y
}

// Limiter applies a gain followed by SoftClip to both channels.
type Limiter struct {
	Gain float32
}

func NewLimiter(gain float32) *Limiter {
	return &Limiter{Gain: gain}
}

func (m *Limiter) Process(l, r float32) (float32, float32) {
	return SoftClip(l * m.Gain), SoftClip(r * m.Gain)
}

// ProcessBuffer limits an interleaved buffer in place.
func (m *Limiter) ProcessBuffer(buf []float32) {
	for i, v := range buf {
		buf[i] = SoftClip(v * m.Gain)
	}
}

func (m *Limiter) Reset() {}
