package effects

// Reverb is a small Schroeder network: four damped combs in parallel into
// two allpasses. The right channel uses combs stretched by a fixed spread so
// a mono input comes out decorrelated.
type Reverb struct {
	left, right tank
	wet         float32
}

const (
	// stereoSpread is added to every right-channel line, in samples at 44.1k.
	stereoSpread = 23
	allpassGain  = 0.5
	defaultDamp  = 0.2
)

var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

type tank struct {
	combs   [4]line
	allpass [2]line
}

// line is a circular delay used by both comb and allpass stages.
type line struct {
	buf  []float32
	pos  int
	fb   float32
	damp float32
	lp   float32
}

// NewReverb builds a reverb. roomSize in [0,1] scales the line lengths,
// feedback sets the comb decay (capped at 0.95), wet the send level.
func NewReverb(sampleRate int, roomSize, feedback, wet float32) *Reverb {
	base := max(int(float32(sampleRate)*roomSize*0.05), 10)
	spread := stereoSpread * sampleRate / 44100
	r := &Reverb{wet: clamp(wet, 0, 1)}
	r.left.build(base, 0)
	r.right.build(base, spread)
	r.SetFeedback(feedback)
	r.SetDamp(defaultDamp)
	return r
}

func (t *tank) build(base, spread int) {
	for i := range t.combs {
		t.combs[i] = line{buf: make([]float32, base*combRatios[i]/1000+spread)}
	}
	for i := range t.allpass {
		t.allpass[i] = line{buf: make([]float32, max(base*allpassRatios[i]/1000+spread, 1)), fb: allpassGain}
	}
}

func (t *tank) process(in float32) float32 {
	var out float32
	for i := range t.combs {
		out += t.combs[i].comb(in)
	}
	out *= 0.25
	for i := range t.allpass {
		out = t.allpass[i].allpassStep(out)
	}
	return out
}

func (t *tank) reset() {
	for i := range t.combs {
		t.combs[i].reset()
	}
	for i := range t.allpass {
		t.allpass[i].reset()
	}
}

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	in := (l + rr) * 0.5
	return blend(l, r.left.process(in), r.wet), blend(rr, r.right.process(in), r.wet)
}

// ProcessMono feeds a mono sample and returns the left tail only, without
// the dry signal.
func (r *Reverb) ProcessMono(in float32) float32 {
	return r.left.process(in)
}

func (r *Reverb) SetWet(wet float32) { r.wet = clamp(wet, 0, 1) }

// SetFeedback changes the comb decay; values are capped at 0.95.
func (r *Reverb) SetFeedback(fb float32) {
	fb = clamp(fb, 0, 0.95)
	for i := range r.left.combs {
		r.left.combs[i].fb = fb
		r.right.combs[i].fb = fb
	}
}

// SetDamp sets how much high end each comb pass loses, in [0,1).
func (r *Reverb) SetDamp(d float32) {
	d = clamp(d, 0, 0.99)
	for i := range r.left.combs {
		r.left.combs[i].damp = d
		r.right.combs[i].damp = d
	}
}

func (r *Reverb) Reset() {
	r.left.reset()
	r.right.reset()
}

func (l *line) comb(in float32) float32 {
	out := l.buf[l.pos]
	l.lp = out + (l.lp-out)*l.damp
	l.buf[l.pos] = in + l.lp*l.fb
	l.advance()
	return out
}

func (l *line) allpassStep(in float32) float32 {
	d := l.buf[l.pos]
	l.buf[l.pos] = in + d*l.fb
	l.advance()
	return d - in
}

func (l *line) advance() {
	if l.pos++; l.pos == len(l.buf) {
		l.pos = 0
	}
}

func (l *line) reset() {
	clear(l.buf)
	l.pos = 0
	l.lp = 0
}
