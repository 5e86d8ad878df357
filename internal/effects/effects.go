// Package effects holds the per-engine send and insert effects. Everything
// here runs on the audio thread: no allocation after construction.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain runs effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBuffer runs the chain over an interleaved stereo buffer in place.
func (c *Chain) ProcessBuffer(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func blend(dry, wet, amount float32) float32 {
	return dry + (wet-dry)*amount
}

func msToSamples(ms float64, sampleRate int) int {
	n := int(ms * float64(sampleRate) / 1000.0)
	if n < 1 {
		n = 1
	}
	return n
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
