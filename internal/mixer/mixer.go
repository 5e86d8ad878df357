package mixer

import (
	"log/slog"
	"sync"

	"github.com/viterin/vek/vek32"

	intfx "github.com/tonetxo/fantagal-go/internal/effects"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

const (
	// MasterGain is applied to the summed bus before the soft clipper.
	MasterGain = 0.6
	// GearStride is the number of floats per gear in GearData.
	GearStride = 10
	// SequencerDataLen is the number of floats SequencerData writes.
	SequencerDataLen = 3 + 2*synth.NumSteps + 3
	// MaxGears bounds the gear table copied out of the gear engine.
	MaxGears = 32
)

type Option func(*config)

type config struct {
	logger   *slog.Logger
	enabled  []Slot
	selected Slot
	tap      func([]float32)
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEnabled marks slots enabled at construction without a Reset.
func WithEnabled(slots ...Slot) Option {
	return func(c *config) {
		c.enabled = append(c.enabled, slots...)
	}
}

func WithSelected(s Slot) Option {
	return func(c *config) {
		c.selected = s
	}
}

// WithTap installs a callback invoked with each limited stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithTap(tap func([]float32)) Option {
	return func(c *config) {
		c.tap = tap
	}
}

type slot struct {
	engine  synth.Engine
	enabled bool
	params  synth.Params
}

// Mixer owns one engine per slot and renders their enabled sum. A single
// mutex guards every field; the audio callback takes it once per buffer.
type Mixer struct {
	mu         sync.Mutex
	slots      [SlotCount]slot
	selected   Slot
	global     synth.Params
	scratch    []float32
	carrier    []float32
	limiter    intfx.Limiter
	gears      [MaxGears]synth.GearState
	sampleRate int
	frames     int
	tap        func([]float32)
	logger     *slog.Logger
}

// New builds a mixer over a fixed set of engines. A nil engine leaves its
// slot permanently silent.
func New(engines [SlotCount]synth.Engine, opts ...Option) *Mixer {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Mixer{
		global:  synth.DefaultParams(),
		limiter: intfx.Limiter{Gain: MasterGain},
		tap:     cfg.tap,
		logger:  cfg.logger,
	}
	for i, e := range engines {
		m.slots[i] = slot{engine: e, params: synth.DefaultParams()}
	}
	for _, s := range cfg.enabled {
		if s.Valid() {
			m.slots[s].enabled = true
		}
	}
	if cfg.selected.Valid() {
		m.selected = cfg.selected
	}
	return m
}

// Prepare grows the scratch buffers and prepares every engine for the
// granted stream configuration.
func (m *Mixer) Prepare(sampleRate, framesPerBuffer int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleRate = sampleRate
	m.frames = framesPerBuffer
	m.grow(framesPerBuffer)
	for i := range m.slots {
		if e := m.slots[i].engine; e != nil {
			e.Prepare(sampleRate, framesPerBuffer)
		}
	}
	m.logger.Info("mixer prepared", "sample_rate", sampleRate, "frames", framesPerBuffer)
}

func (m *Mixer) grow(frames int) {
	if n := frames * 2; len(m.scratch) < n {
		m.scratch = make([]float32, n)
	}
	if len(m.carrier) < frames {
		m.carrier = make([]float32, frames)
	}
}

// Process renders frames of interleaved stereo into dst. While the vocoder
// is enabled the other engines reach the output only through its carrier.
func (m *Mixer) Process(dst []float32, frames int) {
	if frames*2 > len(dst) {
		frames = len(dst) / 2
	}
	n := frames * 2
	out := dst[:n]
	clear(out)
	if frames <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.grow(frames)
	scratch := m.scratch[:n]
	carrier := m.carrier[:frames]
	clear(carrier)

	voc := &m.slots[SlotVocoder]
	vocoderOn := voc.enabled && voc.engine != nil

	for i := range m.slots {
		if Slot(i) == SlotVocoder {
			continue
		}
		s := &m.slots[i]
		if !s.enabled || s.engine == nil {
			continue
		}
		clear(scratch)
		s.engine.Process(scratch, frames)
		for j := range carrier {
			carrier[j] += (scratch[j*2] + scratch[j*2+1]) * 0.5
		}
		if !vocoderOn {
			vek32.Add_Inplace(out, scratch)
		}
	}

	if vocoderOn {
		if cs, ok := voc.engine.(synth.CarrierSink); ok {
			cs.SetCarrier(carrier)
		}
		clear(scratch)
		voc.engine.Process(scratch, frames)
		vek32.Add_Inplace(out, scratch)
	}

	m.limiter.ProcessBuffer(out)
	if m.tap != nil {
		m.tap(out)
	}
}

func (m *Mixer) checkSlot(s Slot, op string) bool {
	if s.Valid() {
		return true
	}
	m.logger.Warn("invalid engine slot", "slot", int(s), "op", op)
	return false
}

// SetEngineEnabled toggles a slot. Every disabled to enabled transition
// resets the engine exactly once.
func (m *Mixer) SetEngineEnabled(s Slot, enabled bool) {
	if !m.checkSlot(s, "set_enabled") {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sl := &m.slots[s]
	if enabled && !sl.enabled && sl.engine != nil {
		sl.engine.Reset()
	}
	sl.enabled = enabled
	m.logger.Debug("engine enabled", "slot", s.String(), "enabled", enabled)
}

func (m *Mixer) IsEngineEnabled(s Slot) bool {
	if !s.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[s].enabled
}

// SetSelectedEngine chooses the slot PlayNote prefers.
func (m *Mixer) SetSelectedEngine(s Slot) {
	if !m.checkSlot(s, "set_selected") {
		return
	}
	m.mu.Lock()
	m.selected = s
	m.mu.Unlock()
}

func (m *Mixer) SelectedEngine() Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// UpdateParameters applies p to every engine. This is the legacy global
// path; per-slot records are overwritten too.
func (m *Mixer) UpdateParameters(p synth.Params) {
	p = p.Clamped()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = p
	for i := range m.slots {
		m.slots[i].params = p
		if e := m.slots[i].engine; e != nil {
			e.UpdateParameters(p)
		}
	}
}

// UpdateEngineParameters applies p to a single slot.
func (m *Mixer) UpdateEngineParameters(s Slot, p synth.Params) {
	if !m.checkSlot(s, "update_params") {
		return
	}
	p = p.Clamped()
	m.mu.Lock()
	defer m.mu.Unlock()
	sl := &m.slots[s]
	sl.params = p
	if sl.engine != nil {
		sl.engine.UpdateParameters(p)
	}
}

func (m *Mixer) Parameters() synth.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global
}

func (m *Mixer) EngineParameters(s Slot) synth.Params {
	if !s.Valid() {
		return synth.Params{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[s].params
}

// PlayNote routes to the selected slot when enabled, otherwise to the
// first enabled slot in index order.
func (m *Mixer) PlayNote(frequency, velocity float32) synth.NoteHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sl := &m.slots[m.selected]; sl.enabled && sl.engine != nil {
		return sl.engine.PlayNote(frequency, velocity)
	}
	for i := range m.slots {
		if sl := &m.slots[i]; sl.enabled && sl.engine != nil {
			return sl.engine.PlayNote(frequency, velocity)
		}
	}
	return synth.NoNote
}

// StopNote broadcasts to every slot regardless of enabled state.
func (m *Mixer) StopNote(h synth.NoteHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if e := m.slots[i].engine; e != nil {
			e.StopNote(h)
		}
	}
}

func (m *Mixer) gearEngine() synth.GearController {
	gc, _ := m.slots[SlotGearheart].engine.(synth.GearController)
	return gc
}

func (m *Mixer) UpdateGear(g synth.GearState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gc := m.gearEngine(); gc != nil {
		gc.UpdateGear(g)
	}
}

func (m *Mixer) UpdateGearPosition(id int, x, y float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gc := m.gearEngine(); gc != nil {
		gc.UpdateGearPosition(id, x, y)
	}
}

// GearData writes the gear table into dst, GearStride floats per gear:
// id, x, y, speed, connected, material, radius, depth, teeth, angle.
// It returns the number of gears written.
func (m *Mixer) GearData(dst []float32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	gc := m.gearEngine()
	if gc == nil {
		return 0
	}
	n := gc.GearStates(m.gears[:])
	if limit := len(dst) / GearStride; n > limit {
		n = limit
	}
	for i, g := range m.gears[:n] {
		row := dst[i*GearStride : (i+1)*GearStride]
		row[0] = float32(g.ID)
		row[1] = g.X
		row[2] = g.Y
		row[3] = g.Speed
		row[4] = boolFloat(g.Connected)
		row[5] = float32(g.Material)
		row[6] = g.Radius
		row[7] = float32(g.Depth)
		row[8] = float32(g.Teeth)
		row[9] = g.Angle
	}
	return n
}

func (m *Mixer) sequencer() synth.StepSequencer {
	sq, _ := m.slots[SlotBreitema].engine.(synth.StepSequencer)
	return sq
}

func (m *Mixer) ToggleStep(step int) {
	if step < 0 || step >= synth.NumSteps {
		m.logger.Warn("step out of range", "step", step)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sq := m.sequencer(); sq != nil {
		sq.ToggleStep(step)
	}
}

func (m *Mixer) SetSequencerPlaying(playing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sq := m.sequencer(); sq != nil {
		sq.SetPlaying(playing)
	}
}

func (m *Mixer) SetRhythmMode(mode synth.RhythmMode) {
	if !mode.Valid() {
		m.logger.Warn("unknown rhythm mode", "mode", int(mode))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sq := m.sequencer(); sq != nil {
		sq.SetRhythmMode(mode)
	}
}

func (m *Mixer) GeneratePattern() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sq := m.sequencer(); sq != nil {
		sq.GeneratePattern()
	}
}

// SequencerData writes SequencerDataLen floats: current step, rhythm mode,
// playing, 16 probabilities, 16 active flags, fog density, fog movement and
// FM depth. An undersized dst is left untouched and 0 is returned.
func (m *Mixer) SequencerData(dst []float32) int {
	if len(dst) < SequencerDataLen {
		m.logger.Warn("sequencer buffer too small", "len", len(dst), "want", SequencerDataLen)
		return 0
	}
	m.mu.Lock()
	sq := m.sequencer()
	if sq == nil {
		m.mu.Unlock()
		return 0
	}
	st := sq.SequencerState()
	m.mu.Unlock()

	dst[0] = float32(st.CurrentStep)
	dst[1] = float32(st.RhythmMode)
	dst[2] = boolFloat(st.Playing)
	for i := 0; i < synth.NumSteps; i++ {
		dst[3+i] = st.Probabilities[i]
		dst[3+synth.NumSteps+i] = boolFloat(st.Steps[i])
	}
	dst[35] = st.FogDensity
	dst[36] = st.FogMovement
	dst[37] = st.FMDepth
	return SequencerDataLen
}

// SetVocoderModulator hands a copy of a mono modulator recording to the
// vocoder. The copy is made before the lock is taken.
func (m *Mixer) SetVocoderModulator(samples []float32) {
	var own []float32
	if len(samples) > 0 {
		own = append([]float32(nil), samples...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.slots[SlotVocoder].engine.(synth.ModulatorSink); ok {
		ms.SetModulator(own)
	}
}

// VocoderLevel reports the vocoder's output level in [0,1].
func (m *Mixer) VocoderLevel() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.slots[SlotVocoder].engine.(synth.ModulatorSink); ok {
		return ms.ModulatorLevel()
	}
	return 0
}

// SampleRate returns the rate passed to the last Prepare.
func (m *Mixer) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleRate
}

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
