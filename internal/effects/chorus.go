package effects

import (
	"github.com/tonetxo/fantagal-go/internal/lfo"
)

// Chorus reads each channel back from a swept delay line. The right sweep
// runs a quarter cycle behind the left, which widens a mono source.
type Chorus struct {
	bufL, bufR []float32
	w          int
	sampleRate float64
	base       float32 // samples
	sweepL     lfo.LFO
	sweepR     lfo.LFO
	feedback   float32
	wet        float32
}

// NewChorus builds a chorus with a delayMs centre, depthMs sweep at rateHz.
// feedback is capped at 0.9.
func NewChorus(sampleRate int, delayMs, feedback, depthMs, rateHz, wet float32) *Chorus {
	sr := float32(sampleRate)
	depth := depthMs * sr / 1000
	base := delayMs * sr / 1000
	if base < depth+1 {
		base = depth + 1
	}
	size := int(base+depth) + 2
	c := &Chorus{
		bufL:       make([]float32, size),
		bufR:       make([]float32, size),
		sampleRate: float64(sampleRate),
		base:       base,
		feedback:   clamp(feedback, 0, 0.9),
		wet:        clamp(wet, 0, 1),
	}
	c.sweepL.Set(float64(depth), float64(rateHz), lfo.Sine)
	c.sweepR.Set(float64(depth), float64(rateHz), lfo.Sine)
	c.sweepR.SetPhase(0.25)
	return c
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	dl := c.tap(c.bufL, c.base+float32(c.sweepL.Next(c.sampleRate)))
	dr := c.tap(c.bufR, c.base+float32(c.sweepR.Next(c.sampleRate)))
	c.bufL[c.w] = l + dl*c.feedback
	c.bufR[c.w] = r + dr*c.feedback
	if c.w++; c.w == len(c.bufL) {
		c.w = 0
	}
	return blend(l, dl, c.wet), blend(r, dr, c.wet)
}

// tap reads d samples behind the write head with linear interpolation.
func (c *Chorus) tap(buf []float32, d float32) float32 {
	n := len(buf)
	pos := float32(c.w) - d
	for pos < 0 {
		pos += float32(n)
	}
	i := int(pos)
	if i >= n {
		i -= n
	}
	frac := pos - float32(int(pos))
	j := i + 1
	if j == n {
		j = 0
	}
	return buf[i] + (buf[j]-buf[i])*frac
}

func (c *Chorus) SetWet(wet float32) { c.wet = clamp(wet, 0, 1) }

func (c *Chorus) Reset() {
	clear(c.bufL)
	clear(c.bufR)
	c.w = 0
	c.sweepL.Reset()
	c.sweepR.Reset()
	c.sweepR.SetPhase(0.25)
}
