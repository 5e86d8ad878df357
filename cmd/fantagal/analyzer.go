package main

import (
	"math"
	"math/bits"
	"math/cmplx"
	"sync"
)

const (
	fftSize    = 1024
	ringBufLen = 8192
)

// analyzer keeps the most recent mixed output for the console meters.
type analyzer struct {
	mu         sync.Mutex
	sampleRate int
	ring       []float32 // mono
	writePos   int
	peak       float32

	// read-only after newAnalyzer
	window  []float64
	twiddle []complex128
}

func newAnalyzer(sampleRate int) *analyzer {
	a := &analyzer{
		sampleRate: sampleRate,
		ring:       make([]float32, ringBufLen),
		window:     make([]float64, fftSize),
		twiddle:    make([]complex128, fftSize/2),
	}
	for i := range a.window {
		a.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}
	for k := range a.twiddle {
		a.twiddle[k] = cmplx.Rect(1, -2*math.Pi*float64(k)/fftSize)
	}
	return a
}

// Tap is called from the audio thread. Keep it minimal: just copy into ring.
func (a *analyzer) Tap(samples []float32) {
	a.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		mono := (samples[i] + samples[i+1]) * 0.5
		a.ring[a.writePos] = mono
		a.writePos = (a.writePos + 1) % ringBufLen
		if m := float32(math.Abs(float64(mono))); m > a.peak {
			a.peak = m
		}
	}
	a.mu.Unlock()
}

// Peak returns the largest magnitude since the previous call.
func (a *analyzer) Peak() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.peak
	a.peak = 0
	return p
}

func (a *analyzer) snapshot(n int) []float32 {
	out := make([]float32, n)
	a.mu.Lock()
	start := (a.writePos - n + ringBufLen) % ringBufLen
	for i := range out {
		out[i] = a.ring[(start+i)%ringBufLen]
	}
	a.mu.Unlock()
	return out
}

// Bands returns n log-spaced magnitudes in [0,1] between 40 Hz and
// Nyquist.
func (a *analyzer) Bands(n int) []float64 {
	samples := a.snapshot(fftSize)
	x := make([]complex128, fftSize)
	for i, s := range samples {
		x[i] = complex(float64(s)*a.window[i], 0)
	}
	a.transform(x)

	out := make([]float64, n)
	nyq := float64(a.sampleRate) / 2
	lo, hi := math.Log(40), math.Log(nyq)
	binHz := float64(a.sampleRate) / fftSize
	for b := range out {
		f0 := math.Exp(lo + (hi-lo)*float64(b)/float64(n))
		f1 := math.Exp(lo + (hi-lo)*float64(b+1)/float64(n))
		k0 := max(1, int(f0/binHz))
		k1 := min(fftSize/2, max(k0+1, int(f1/binHz)))
		var m float64
		for k := k0; k < k1; k++ {
			m = math.Max(m, cmplx.Abs(x[k]))
		}
		db := 20 * math.Log10(m/(fftSize/4)+1e-9)
		out[b] = math.Min(1, math.Max(0, (db+60)/60))
	}
	return out
}

// transform is an in-place decimation-in-time FFT over fftSize points.
func (a *analyzer) transform(x []complex128) {
	shift := 64 - bits.TrailingZeros(fftSize)
	for i := range x {
		if j := int(bits.Reverse64(uint64(i)) >> shift); i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for span := 1; span < fftSize; span <<= 1 {
		stride := fftSize / (2 * span)
		for base := 0; base < fftSize; base += 2 * span {
			for k := 0; k < span; k++ {
				even, odd := &x[base+k], &x[base+k+span]
				t := a.twiddle[k*stride] * *odd
				*even, *odd = *even+t, *even-t
			}
		}
	}
}
