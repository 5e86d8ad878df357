package echovessel

import (
	"testing"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

func dry() synth.Params {
	p := synth.DefaultParams()
	p.Diffusion = 0
	p.Turbulence = 0
	return p
}

func TestEngineGeneratesSignal(t *testing.T) {
	e := New(48000, DefaultParams())
	id := e.PlayNote(440, 1)
	if id == synth.NoNote {
		t.Fatalf("invalid voice id")
	}
	buf := make([]float32, 8192)
	e.Process(buf, 4096)
	var nonZero bool
	for _, s := range buf {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected non-zero output")
	}
}

func TestLowNotesUseTriangle(t *testing.T) {
	e := New(48000, DefaultParams())
	e.PlayNote(110, 1)
	e.PlayNote(880, 1)
	if e.voices[0].wave != waveTriangle || e.voices[1].wave != wavePulse {
		t.Fatalf("waves = %d, %d", e.voices[0].wave, e.voices[1].wave)
	}
}

func TestAlternatingPanBiasesChannels(t *testing.T) {
	e := New(48000, DefaultParams())
	e.UpdateParameters(dry())
	e.PlayNote(440, 1) // first voice pans right
	var leftEnergy, rightEnergy float64
	buf := make([]float32, 8192)
	e.Process(buf, 4096)
	for i := 0; i < len(buf); i += 2 {
		leftEnergy += float64(buf[i] * buf[i])
		rightEnergy += float64(buf[i+1] * buf[i+1])
	}
	if rightEnergy <= leftEnergy {
		t.Fatalf("expected right-biased signal, left=%f right=%f", leftEnergy, rightEnergy)
	}
}

func TestStopNoteReleasesVoice(t *testing.T) {
	e := New(48000, DefaultParams())
	p := dry()
	p.Viscosity = 1
	e.UpdateParameters(p)
	id := e.PlayNote(440, 1)
	buf := make([]float32, 2048)
	e.Process(buf, 1024)
	e.StopNote(id)
	for i := 0; i < 10; i++ {
		e.Process(buf, 1024)
	}
	if n := e.ActiveVoiceCount(); n != 0 {
		t.Fatalf("active voices = %d after release", n)
	}
}

func TestStealOldestWhenFull(t *testing.T) {
	p := DefaultParams()
	p.Voices = 2
	e := New(48000, p)
	a := e.PlayNote(440, 1)
	buf := make([]float32, 64)
	e.Process(buf, 32)
	e.PlayNote(550, 1)
	e.Process(buf, 32)
	c := e.PlayNote(660, 1)
	if e.voices[0].id != c {
		t.Fatalf("oldest voice (handle %d) should be stolen", a)
	}
	if e.ActiveVoiceCount() != 2 {
		t.Fatalf("active voices = %d", e.ActiveVoiceCount())
	}
}

func TestResetClearsVoicesAndEcho(t *testing.T) {
	e := New(48000, DefaultParams())
	e.UpdateParameters(synth.Params{Pressure: 0.5, Resonance: 1, Viscosity: 0.5, Diffusion: 1})
	e.PlayNote(440, 1)
	buf := make([]float32, 8192)
	e.Process(buf, 4096)
	e.Reset()
	e.Process(buf, 4096)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %f after reset", i, s)
		}
	}
}

func TestUnknownHandleIsIgnored(t *testing.T) {
	e := New(48000, DefaultParams())
	e.PlayNote(440, 1)
	e.StopNote(99)
	if e.voices[0].envState == envRelease {
		t.Fatal("unrelated voice released")
	}
	if e.PlayNote(-1, 1) != synth.NoNote {
		t.Fatal("negative frequency should be refused")
	}
}

func TestEffectsOutputStaysBounded(t *testing.T) {
	e := New(48000, DefaultParams())
	e.UpdateParameters(synth.Params{Pressure: 1, Resonance: 1, Viscosity: 1, Turbulence: 1, Diffusion: 1})
	for _, f := range []float32{110, 220, 330, 440, 660, 880} {
		e.PlayNote(f, 1)
	}
	buf := make([]float32, 16384)
	e.Process(buf, 8192)
	var energy float64
	for i, s := range buf {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %f", i, s)
		}
		energy += float64(s * s)
	}
	if energy == 0 {
		t.Fatal("expected output through the effects chain")
	}
}
