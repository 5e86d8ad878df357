package dsp

import (
	"math"
	"testing"
)

func TestBandpassPassesCenterRejectsFar(t *testing.T) {
	const sr = 48000
	measure := func(freq float64) float64 {
		var f Biquad
		f.SetBandpass(1000, 5, sr)
		var peak float64
		for i := 0; i < sr/4; i++ {
			y := f.Process(float32(math.Sin(2 * math.Pi * freq * float64(i) / sr)))
			if i > sr/8 && math.Abs(float64(y)) > peak {
				peak = math.Abs(float64(y))
			}
		}
		return peak
	}
	center := measure(1000)
	far := measure(100)
	if center < 0.8 {
		t.Errorf("center gain = %f, want near 1", center)
	}
	if far > center*0.2 {
		t.Errorf("far gain = %f, want well below center %f", far, center)
	}
}

func TestHighpassRemovesDC(t *testing.T) {
	var f Biquad
	f.SetHighpass(150, 0.707, 48000)
	var y float32
	for i := 0; i < 48000; i++ {
		y = f.Process(1)
	}
	if math.Abs(float64(y)) > 1e-3 {
		t.Fatalf("dc after highpass = %f", y)
	}
}

func TestEnvelopeFollowerRisesAndFalls(t *testing.T) {
	e := NewEnvelopeFollower(48000)
	for i := 0; i < 4800; i++ {
		e.Process(0.5)
	}
	if e.Level() < 0.45 {
		t.Fatalf("level after attack = %f", e.Level())
	}
	for i := 0; i < 48000; i++ {
		e.Process(0)
	}
	if e.Level() > 0.01 {
		t.Fatalf("level after release = %f", e.Level())
	}
}

func TestSmootherConverges(t *testing.T) {
	s := NewSmoother(0, 10, 48000)
	s.SetTarget(1)
	for i := 0; i < 48000; i++ {
		s.Next()
	}
	if math.Abs(float64(s.Value()-1)) > 1e-3 {
		t.Fatalf("smoother value = %f, want 1", s.Value())
	}
}

func TestFastTanhBounds(t *testing.T) {
	if FastTanh(0) != 0 {
		t.Error("tanh(0) should be 0")
	}
	if FastTanh(10) != 1 || FastTanh(-10) != -1 {
		t.Error("fast tanh should saturate at ±1")
	}
	if got := FastTanh(0.5); math.Abs(float64(got)-math.Tanh(0.5)) > 0.01 {
		t.Errorf("tanh(0.5) = %f", got)
	}
}

func TestADSRStages(t *testing.T) {
	const sr = 1000
	a := ADSR{Attack: 0.01, Decay: 0.01, Sustain: 0.5, Release: 0.02}
	a.NoteOn()
	for i := 0; i < 10; i++ {
		a.Next(sr)
	}
	if a.Level() < 0.99 {
		t.Fatalf("level after attack = %f", a.Level())
	}
	for i := 0; i < 30; i++ {
		a.Next(sr)
	}
	if a.Stage() != StageSustain || a.Level() != 0.5 {
		t.Fatalf("stage %d level %f, want sustain 0.5", a.Stage(), a.Level())
	}
	a.NoteOff()
	for i := 0; i < 20; i++ {
		a.Next(sr)
	}
	if a.Active() || a.Level() != 0 {
		t.Fatalf("envelope still active after release: %f", a.Level())
	}
}

func TestADSRNoteOffWhenIdle(t *testing.T) {
	var a ADSR
	a.NoteOff()
	if a.Active() {
		t.Fatal("idle envelope should stay off")
	}
}
