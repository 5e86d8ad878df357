package dsp

import "math"

const twoPi = math.Pi * 2

// Biquad is a direct-form I second order section.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32
	x1, x2     float32
	y1, y2     float32
}

// SetBandpass configures a constant 0 dB peak gain bandpass.
func (f *Biquad) SetBandpass(freq, q float32, sampleRate float32) {
	q = maxf(q, 0.01)
	w0 := twoPi * float64(freq) / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * float64(q))
	cosw0 := math.Cos(w0)
	a0 := 1 + alpha
	f.b0 = float32(alpha / a0)
	f.b1 = 0
	f.b2 = float32(-alpha / a0)
	f.a1 = float32(-2 * cosw0 / a0)
	f.a2 = float32((1 - alpha) / a0)
}

// SetHighpass configures a second order highpass.
func (f *Biquad) SetHighpass(freq, q float32, sampleRate float32) {
	q = maxf(q, 0.01)
	w0 := twoPi * float64(freq) / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * float64(q))
	cosw0 := math.Cos(w0)
	a0 := 1 + alpha
	f.b0 = float32((1 + cosw0) / 2 / a0)
	f.b1 = float32(-(1 + cosw0) / a0)
	f.b2 = f.b0
	f.a1 = float32(-2 * cosw0 / a0)
	f.a2 = float32((1 - alpha) / a0)
}

func (f *Biquad) Process(x float32) float32 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2 = f.x1
	f.x1 = x
	f.y2 = f.y1
	f.y1 = y
	return y
}

// Reset clears the filter history but keeps the coefficients.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// OnePole is a one pole lowpass/highpass pair sharing state.
type OnePole struct {
	lp     float32
	prevIn float32
	hp     float32
}

// Lowpass filters x at freq Hz.
func (o *OnePole) Lowpass(x, freq, sampleRate float32) float32 {
	dt := 1 / sampleRate
	rc := 1 / (twoPi * freq)
	alpha := dt / (rc + dt)
	o.lp += alpha * (x - o.lp)
	return o.lp
}

// Highpass filters x at freq Hz.
func (o *OnePole) Highpass(x, freq, sampleRate float32) float32 {
	dt := 1 / sampleRate
	rc := 1 / (twoPi * freq)
	alpha := rc / (rc + dt)
	o.hp = alpha * (o.hp + x - o.prevIn)
	o.prevIn = x
	return o.hp
}

func (o *OnePole) Reset() {
	*o = OnePole{}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
