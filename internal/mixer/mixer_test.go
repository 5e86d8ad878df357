package mixer

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

// constEngine writes a constant value to every sample and counts calls.
type constEngine struct {
	value     float32
	resets    int
	prepared  int
	processed int
	params    synth.Params
	played    []float32
	stopped   []synth.NoteHandle
	nextNote  synth.NoteHandle
}

func (e *constEngine) Prepare(int, int) { e.prepared++ }

func (e *constEngine) Process(dst []float32, frames int) {
	e.processed++
	for i := 0; i < frames*2; i++ {
		dst[i] = e.value
	}
}

func (e *constEngine) UpdateParameters(p synth.Params) { e.params = p }

func (e *constEngine) PlayNote(freq, _ float32) synth.NoteHandle {
	e.played = append(e.played, freq)
	e.nextNote++
	return e.nextNote
}

func (e *constEngine) StopNote(h synth.NoteHandle) { e.stopped = append(e.stopped, h) }

func (e *constEngine) Reset() { e.resets++ }

// carrierEngine records the carrier it was handed and outputs a fixed value.
type carrierEngine struct {
	constEngine
	carrier []float32
	level   float32
	mod     []float32
}

func (e *carrierEngine) SetCarrier(c []float32) {
	e.carrier = append(e.carrier[:0], c...)
}

func (e *carrierEngine) SetModulator(s []float32) { e.mod = s }

func (e *carrierEngine) ModulatorLevel() float32 { return e.level }

type gearEngine struct {
	constEngine
	gears []synth.GearState
}

func (e *gearEngine) UpdateGear(g synth.GearState) {
	for i := range e.gears {
		if e.gears[i].ID == g.ID {
			e.gears[i] = g
			return
		}
	}
	e.gears = append(e.gears, g)
}

func (e *gearEngine) UpdateGearPosition(id int, x, y float32) {
	for i := range e.gears {
		if e.gears[i].ID == id {
			e.gears[i].X, e.gears[i].Y = x, y
		}
	}
}

func (e *gearEngine) GearStates(dst []synth.GearState) int {
	return copy(dst, e.gears)
}

type seqEngine struct {
	constEngine
	state synth.SequencerState
}

func (e *seqEngine) ToggleStep(step int) { e.state.Steps[step] = !e.state.Steps[step] }
func (e *seqEngine) SetPlaying(p bool) { e.state.Playing = p }
func (e *seqEngine) SetRhythmMode(m synth.RhythmMode) { e.state.RhythmMode = m }
func (e *seqEngine) GeneratePattern() { e.state.Probabilities[0] = 0.75 }
func (e *seqEngine) SequencerState() synth.SequencerState {
	return e.state
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMixer(engines [SlotCount]synth.Engine, opts ...Option) *Mixer {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	m := New(engines, opts...)
	m.Prepare(48000, 64)
	return m
}

func sum(buf []float32) float64 {
	var s float64
	for _, v := range buf {
		s += float64(v)
	}
	return s
}

func TestDisabledEnginesContributeNothing(t *testing.T) {
	a := &constEngine{value: 0.1}
	b := &constEngine{value: 0.2}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotEchoVessel: b})

	buf := make([]float32, 128)
	m.Process(buf, 64)
	if sum(buf) != 0 {
		t.Fatalf("all-disabled output sum = %f, want 0", sum(buf))
	}
	if a.processed != 0 || b.processed != 0 {
		t.Fatal("disabled engines should not be processed")
	}

	m.SetEngineEnabled(SlotCriosfera, true)
	m.Process(buf, 64)
	want := float32(0.1 * MasterGain)
	for i, v := range buf {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("sample %d = %f, want %f", i, v, want)
		}
	}
	if b.processed != 0 {
		t.Fatal("disabled engine was processed")
	}
}

func TestEnabledEnginesSum(t *testing.T) {
	a := &constEngine{value: 0.1}
	b := &constEngine{value: 0.2}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotBreitema: b},
		WithEnabled(SlotCriosfera, SlotBreitema))
	buf := make([]float32, 8)
	m.Process(buf, 4)
	want := float32(0.3 * MasterGain)
	if math.Abs(float64(buf[0]-want)) > 1e-6 {
		t.Fatalf("sum = %f, want %f", buf[0], want)
	}
}

func TestResetExactlyOnceOnReenable(t *testing.T) {
	a := &constEngine{}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a})

	m.SetEngineEnabled(SlotCriosfera, true)
	m.SetEngineEnabled(SlotCriosfera, true)
	if a.resets != 1 {
		t.Fatalf("resets after enable twice = %d, want 1", a.resets)
	}
	m.SetEngineEnabled(SlotCriosfera, false)
	if a.resets != 1 {
		t.Fatalf("disable should not reset, got %d", a.resets)
	}
	m.SetEngineEnabled(SlotCriosfera, true)
	if a.resets != 2 {
		t.Fatalf("resets after re-enable = %d, want 2", a.resets)
	}
	if !m.IsEngineEnabled(SlotCriosfera) {
		t.Fatal("slot should report enabled")
	}
}

func TestInvalidSlotIsIgnored(t *testing.T) {
	m := newTestMixer([SlotCount]synth.Engine{})
	m.SetEngineEnabled(Slot(7), true)
	m.SetEngineEnabled(Slot(-1), true)
	m.SetSelectedEngine(Slot(9))
	m.UpdateEngineParameters(Slot(5), synth.Params{Pressure: 1})
	if m.IsEngineEnabled(Slot(7)) {
		t.Fatal("invalid slot reported enabled")
	}
	if m.SelectedEngine() != SlotCriosfera {
		t.Fatalf("selected = %v, want unchanged", m.SelectedEngine())
	}
	if (m.EngineParameters(Slot(5)) != synth.Params{}) {
		t.Fatal("invalid slot should return zero params")
	}
}

func TestVocoderSuppressesDirectPath(t *testing.T) {
	a := &constEngine{value: 0.2}
	b := &constEngine{value: 0.1}
	v := &carrierEngine{constEngine: constEngine{value: 0}}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotEchoVessel: b, SlotVocoder: v},
		WithEnabled(SlotCriosfera, SlotEchoVessel, SlotVocoder))

	buf := make([]float32, 32)
	m.Process(buf, 16)
	if sum(buf) != 0 {
		t.Fatalf("direct path leaked with vocoder enabled: sum %f", sum(buf))
	}
	if len(v.carrier) != 16 {
		t.Fatalf("carrier len = %d, want 16", len(v.carrier))
	}
	for i, c := range v.carrier {
		if math.Abs(float64(c)-0.3) > 1e-6 {
			t.Fatalf("carrier[%d] = %f, want 0.3", i, c)
		}
	}

	m.SetEngineEnabled(SlotVocoder, false)
	m.Process(buf, 16)
	if sum(buf) == 0 {
		t.Fatal("direct path should return once the vocoder is disabled")
	}
}

func TestVocoderOutputReachesBus(t *testing.T) {
	v := &carrierEngine{constEngine: constEngine{value: 0.25}}
	m := newTestMixer([SlotCount]synth.Engine{SlotVocoder: v}, WithEnabled(SlotVocoder))
	buf := make([]float32, 4)
	m.Process(buf, 2)
	if math.Abs(float64(buf[0])-0.25*MasterGain) > 1e-6 {
		t.Fatalf("vocoder output = %f", buf[0])
	}
	if len(v.carrier) != 2 || v.carrier[0] != 0 {
		t.Fatalf("carrier without sources = %v, want zeros", v.carrier)
	}
}

func TestOutputIsSoftClipped(t *testing.T) {
	loud := &constEngine{value: 50}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: loud}, WithEnabled(SlotCriosfera))
	buf := make([]float32, 64)
	m.Process(buf, 32)
	for i, v := range buf {
		if v >= 1 || v <= 0.5 {
			t.Fatalf("sample %d = %f, want in (0.5, 1)", i, v)
		}
	}
	loud.value = -50
	m.Process(buf, 32)
	for i, v := range buf {
		if v <= -1 || v >= -0.5 {
			t.Fatalf("sample %d = %f, want in (-1, -0.5)", i, v)
		}
	}
}

func TestProcessClampsFramesToBuffer(t *testing.T) {
	a := &constEngine{value: 0.1}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a}, WithEnabled(SlotCriosfera))
	buf := make([]float32, 10)
	m.Process(buf, 100)
	if buf[9] == 0 {
		t.Fatal("last sample should be rendered")
	}
}

func TestProcessGrowsBuffersPastPrepare(t *testing.T) {
	a := &constEngine{value: 0.1}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a}, WithEnabled(SlotCriosfera))
	buf := make([]float32, 1024)
	m.Process(buf, 512)
	if buf[1023] == 0 {
		t.Fatal("oversized callback should still render")
	}
}

func TestPlayNoteRouting(t *testing.T) {
	a := &constEngine{}
	b := &constEngine{}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotEchoVessel: b})

	if h := m.PlayNote(440, 1); h != synth.NoNote {
		t.Fatalf("no enabled engine: handle %d, want NoNote", h)
	}

	m.SetEngineEnabled(SlotEchoVessel, true)
	m.SetSelectedEngine(SlotCriosfera)
	if h := m.PlayNote(220, 1); h == synth.NoNote || len(b.played) != 1 {
		t.Fatal("should fall back to first enabled slot")
	}

	m.SetEngineEnabled(SlotCriosfera, true)
	m.PlayNote(330, 1)
	if len(a.played) != 1 || a.played[0] != 330 {
		t.Fatalf("selected slot should receive note, got %v", a.played)
	}
}

func TestStopNoteBroadcasts(t *testing.T) {
	a := &constEngine{}
	b := &constEngine{}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotBreitema: b}, WithEnabled(SlotCriosfera))
	m.StopNote(12345)
	if len(a.stopped) != 1 || len(b.stopped) != 1 {
		t.Fatalf("stop should reach every slot: %d %d", len(a.stopped), len(b.stopped))
	}
}

func TestParametersAreClampedAndStored(t *testing.T) {
	a := &constEngine{}
	b := &constEngine{}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a, SlotGearheart: b})

	m.UpdateEngineParameters(SlotGearheart, synth.Params{Pressure: 3, Resonance: 0.4})
	if b.params.Pressure != 1 || b.params.Resonance != 0.4 {
		t.Fatalf("engine params = %+v", b.params)
	}
	if got := m.EngineParameters(SlotGearheart); got != b.params {
		t.Fatalf("stored params = %+v", got)
	}
	if a.params != (synth.Params{}) {
		t.Fatal("per-slot update leaked into another slot")
	}

	g := synth.Params{Pressure: 0.2, Resonance: 0.2, Viscosity: 0.2, Turbulence: 0.2, Diffusion: -1}
	m.UpdateParameters(g)
	want := g.Clamped()
	if a.params != want || b.params != want || m.Parameters() != want {
		t.Fatal("global update should reach every slot")
	}
}

func TestGearDataLayout(t *testing.T) {
	g := &gearEngine{}
	m := newTestMixer([SlotCount]synth.Engine{SlotGearheart: g})
	m.UpdateGear(synth.GearState{ID: 0, X: 1, Y: 2, Speed: 0.02, Connected: true, Material: synth.MaterialIron, Radius: 100, Teeth: 14, Angle: 0.5})
	m.UpdateGear(synth.GearState{ID: 1, X: 3, Y: 4, Speed: -0.03, Material: synth.MaterialGold, Radius: 60, Depth: 1, Teeth: 8})
	m.UpdateGearPosition(1, 30, 40)

	buf := make([]float32, 2*GearStride)
	if n := m.GearData(buf); n != 2 {
		t.Fatalf("gears written = %d, want 2", n)
	}
	want := []float32{0, 1, 2, 0.02, 1, 0, 100, 0, 14, 0.5, 1, 30, 40, -0.03, 0, 3, 60, 1, 8, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buf[%d] = %f, want %f", i, buf[i], want[i])
		}
	}

	short := make([]float32, GearStride+3)
	if n := m.GearData(short); n != 1 {
		t.Fatalf("short buffer gears = %d, want 1", n)
	}
}

func TestSequencerData(t *testing.T) {
	s := &seqEngine{}
	s.state.FogDensity = 0.6
	s.state.FogMovement = 1.0
	s.state.FMDepth = 250
	m := newTestMixer([SlotCount]synth.Engine{SlotBreitema: s})

	m.ToggleStep(3)
	m.ToggleStep(99)
	m.SetSequencerPlaying(true)
	m.SetRhythmMode(synth.RhythmRibeirada)
	m.SetRhythmMode(synth.RhythmMode(8))
	m.GeneratePattern()

	small := make([]float32, SequencerDataLen-1)
	if n := m.SequencerData(small); n != 0 {
		t.Fatalf("undersized buffer returned %d", n)
	}
	for _, v := range small {
		if v != 0 {
			t.Fatal("undersized buffer was written")
		}
	}

	buf := make([]float32, 40)
	if n := m.SequencerData(buf); n != SequencerDataLen {
		t.Fatalf("entries = %d, want %d", n, SequencerDataLen)
	}
	if buf[1] != float32(synth.RhythmRibeirada) || buf[2] != 1 {
		t.Fatalf("header = %v", buf[:3])
	}
	if buf[3] != 0.75 {
		t.Fatalf("prob[0] = %f", buf[3])
	}
	if buf[19+3] != 1 || buf[19] != 0 {
		t.Fatalf("step flags = %v", buf[19:35])
	}
	if buf[35] != 0.6 || buf[36] != 1.0 || buf[37] != 250 {
		t.Fatalf("fog fields = %v", buf[35:38])
	}
}

func TestCapabilityOpsWithoutEngines(t *testing.T) {
	m := newTestMixer([SlotCount]synth.Engine{})
	if m.GearData(make([]float32, 50)) != 0 {
		t.Fatal("no gear engine should yield 0 gears")
	}
	if m.SequencerData(make([]float32, 38)) != 0 {
		t.Fatal("no sequencer should yield 0")
	}
	if m.VocoderLevel() != 0 {
		t.Fatal("no vocoder should yield level 0")
	}
	m.SetVocoderModulator([]float32{1, 2})
	m.UpdateGear(synth.GearState{})
	m.GeneratePattern()
}

func TestVocoderModulatorAndLevel(t *testing.T) {
	v := &carrierEngine{level: 0.4}
	m := newTestMixer([SlotCount]synth.Engine{SlotVocoder: v})
	rec := []float32{0.1, 0.2}
	m.SetVocoderModulator(rec)
	if len(v.mod) != 2 {
		t.Fatal("modulator not delivered")
	}
	rec[0] = 9
	if v.mod[0] != 0.1 {
		t.Fatal("mixer should hand the engine its own copy")
	}
	m.SetVocoderModulator(nil)
	if v.mod != nil {
		t.Fatal("nil recording should clear the modulator")
	}
	if m.VocoderLevel() != 0.4 {
		t.Fatalf("level = %f", m.VocoderLevel())
	}
}

func TestTapSeesLimitedOutput(t *testing.T) {
	var peak float32
	a := &constEngine{value: 10}
	m := newTestMixer([SlotCount]synth.Engine{SlotCriosfera: a}, WithEnabled(SlotCriosfera),
		WithTap(func(buf []float32) {
			for _, v := range buf {
				if v > peak {
					peak = v
				}
			}
		}))
	m.Process(make([]float32, 16), 8)
	if peak == 0 || peak >= 1 {
		t.Fatalf("tap peak = %f", peak)
	}
}

func TestPrepareReachesEveryEngine(t *testing.T) {
	var engines [SlotCount]synth.Engine
	fakes := make([]*constEngine, SlotCount)
	for i := range engines {
		fakes[i] = &constEngine{}
		engines[i] = fakes[i]
	}
	m := New(engines, WithLogger(quietLogger()))
	m.Prepare(44100, 256)
	for i, f := range fakes {
		if f.prepared != 1 {
			t.Fatalf("slot %d prepared %d times", i, f.prepared)
		}
	}
	if m.SampleRate() != 44100 {
		t.Fatalf("sample rate = %d", m.SampleRate())
	}
}

func TestConcurrentControlAndRender(t *testing.T) {
	var engines [SlotCount]synth.Engine
	for i := range engines {
		engines[i] = &constEngine{value: 0.05}
	}
	m := newTestMixer(engines)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]float32, 128)
		for {
			select {
			case <-stop:
				return
			default:
				m.Process(buf, 64)
			}
		}
	}()
	for i := 0; i < 2000; i++ {
		s := Slot(i % SlotCount)
		m.SetEngineEnabled(s, i%3 != 0)
		m.SetSelectedEngine(s)
		m.UpdateEngineParameters(s, synth.Params{Pressure: float32(i%10) / 10})
		h := m.PlayNote(440, 1)
		m.StopNote(h)
	}
	close(stop)
	wg.Wait()
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		name string
		want Slot
		ok   bool
	}{
		{"criosfera", SlotCriosfera, true},
		{" Vocoder ", SlotVocoder, true},
		{"BREITEMA", SlotBreitema, true},
		{"nope", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseSlot(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSlot(%q) = %v, %v", tt.name, got, ok)
		}
	}
	if Slot(12).String() != "unknown" || SlotGearheart.String() != "gearheart" {
		t.Error("slot names")
	}
}
