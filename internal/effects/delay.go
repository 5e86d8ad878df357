package effects

// Delay is a stereo feedback delay with cross-channel feedback. The buffer
// is sized once for the longest delay; SetDelay moves the loop point within
// it without allocating.
type Delay struct {
	bufL, bufR []float32
	pos        int
	length     int
	sampleRate int
	feedback   float32
	cross      float32
	wet        float32
}

// NewDelay builds a delay of delayMs (also the SetDelay maximum). feedback
// is capped at 0.95; cross moves feedback to the other channel.
func NewDelay(sampleRate int, delayMs float64, feedback, cross, wet float32) *Delay {
	n := msToSamples(delayMs, sampleRate)
	return &Delay{
		bufL:       make([]float32, n),
		bufR:       make([]float32, n),
		length:     n,
		sampleRate: sampleRate,
		feedback:   clamp(feedback, 0, 0.95),
		cross:      clamp(cross, 0, 1),
		wet:        clamp(wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	dl, dr := d.bufL[d.pos], d.bufR[d.pos]
	straight := d.feedback * (1 - d.cross)
	crossed := d.feedback * d.cross
	d.bufL[d.pos] = l + dl*straight + dr*crossed
	d.bufR[d.pos] = r + dr*straight + dl*crossed
	d.advance()
	return blend(l, dl, d.wet), blend(r, dr, d.wet)
}

// ProcessMono runs the left line only and returns the echo without the dry
// input. Cross feedback and wet do not apply.
func (d *Delay) ProcessMono(x float32) float32 {
	echo := d.bufL[d.pos]
	d.bufL[d.pos] = x + echo*d.feedback
	d.advance()
	return echo
}

func (d *Delay) advance() {
	if d.pos++; d.pos >= d.length {
		d.pos = 0
	}
}

// SetDelay changes the delay time, clamped to the allocated maximum.
func (d *Delay) SetDelay(ms float64) {
	d.length = min(msToSamples(ms, d.sampleRate), len(d.bufL))
	if d.pos >= d.length {
		d.pos = 0
	}
}

func (d *Delay) SetFeedback(fb float32) { d.feedback = clamp(fb, 0, 0.95) }

func (d *Delay) SetWet(wet float32) { d.wet = clamp(wet, 0, 1) }

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}
