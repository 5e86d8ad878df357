// Package fantagal mixes five compiled-in synth engines in real time and
// drives the percussion engine from a simulated gear network.
package fantagal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	intaudio "github.com/tonetxo/fantagal-go/internal/audio"
	"github.com/tonetxo/fantagal-go/internal/engines/breitema"
	"github.com/tonetxo/fantagal-go/internal/engines/criosfera"
	"github.com/tonetxo/fantagal-go/internal/engines/echovessel"
	"github.com/tonetxo/fantagal-go/internal/engines/gearheart"
	"github.com/tonetxo/fantagal-go/internal/engines/vocoder"
	"github.com/tonetxo/fantagal-go/internal/gears"
	"github.com/tonetxo/fantagal-go/internal/mixer"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

// ErrUnknownBackend is returned for an audio backend name that is not
// compiled in.
var ErrUnknownBackend = errors.New("fantagal: unknown audio backend")

// Backend names accepted by NewBackend.
const (
	BackendOto      = "oto"
	BackendEbiten   = "ebiten"
	BackendBeep     = "beep"
	BackendHeadless = "headless"
)

// DefaultFrameRate is the gear simulation rate in frames per second.
const DefaultFrameRate = 60

// NewBackend returns the audio backend registered under name.
func NewBackend(name string) (intaudio.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendOto:
		return intaudio.OtoBackend{}, nil
	case BackendEbiten:
		return intaudio.EbitenBackend{}, nil
	case BackendBeep:
		return intaudio.BeepBackend{}, nil
	case BackendHeadless:
		return &intaudio.HeadlessBackend{Clocked: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

type Option func(*platformConfig)

type platformConfig struct {
	backend    intaudio.Backend
	logger     *slog.Logger
	sampleRate int
	frames     int
	frameRate  float64
	layout     []gears.Gear
	margin     float32
	enabled    []mixer.Slot
	selected   mixer.Slot
	sampleTap  func([]float32)
	err        error
}

func defaultPlatformConfig() platformConfig {
	return platformConfig{
		logger:     slog.Default(),
		sampleRate: intaudio.DefaultSampleRate,
		frames:     intaudio.DefaultFramesPerBuffer,
		frameRate:  DefaultFrameRate,
		margin:     gears.DefaultMargin,
		selected:   mixer.SlotCriosfera,
	}
}

// WithBackend selects the audio output. The default is oto.
func WithBackend(b intaudio.Backend) Option {
	return func(cfg *platformConfig) {
		cfg.backend = b
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *platformConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func WithSampleRate(sr int) Option {
	return func(cfg *platformConfig) {
		if sr > 0 {
			cfg.sampleRate = sr
		}
	}
}

func WithFramesPerBuffer(n int) Option {
	return func(cfg *platformConfig) {
		if n > 0 {
			cfg.frames = n
		}
	}
}

// WithFrameRate sets how many gear simulation frames run per second.
func WithFrameRate(fps float64) Option {
	return func(cfg *platformConfig) {
		if fps > 0 {
			cfg.frameRate = fps
		}
	}
}

func WithGearLayout(gs []gears.Gear) Option {
	return func(cfg *platformConfig) {
		cfg.layout = gs
	}
}

// WithConnectionMargin sets the meshing tolerance of the gear network.
func WithConnectionMargin(m float32) Option {
	return func(cfg *platformConfig) {
		if m >= 0 {
			cfg.margin = m
		}
	}
}

// WithEnabled starts the listed slots enabled.
func WithEnabled(slots ...mixer.Slot) Option {
	return func(cfg *platformConfig) {
		cfg.enabled = append(cfg.enabled, slots...)
	}
}

func WithSelected(s mixer.Slot) Option {
	return func(cfg *platformConfig) {
		cfg.selected = s
	}
}

// WithSampleTap installs a callback invoked with each mixed stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *platformConfig) {
		cfg.sampleTap = tap
	}
}

// WithConfig applies a loaded Config. Options given after it override it.
func WithConfig(c Config) Option {
	return func(cfg *platformConfig) {
		if err := c.Validate(); err != nil {
			cfg.err = err
			return
		}
		b, err := NewBackend(c.Backend)
		if err != nil {
			cfg.err = err
			return
		}
		cfg.backend = b
		cfg.sampleRate = c.SampleRate
		cfg.frames = c.FramesPerBuffer
		if c.FrameRate > 0 {
			cfg.frameRate = c.FrameRate
		}
		cfg.margin = c.ConnectionMargin
		cfg.enabled = c.enabledSlots()
		cfg.selected = c.selectedSlot()
		if len(c.Gears) > 0 {
			cfg.layout = c.layout()
		}
	}
}

// Platform is the process-wide owner of the mixer, the audio stream and the
// gear simulation. Construct one and pass it around.
type Platform struct {
	mixer     *mixer.Mixer
	manager   *intaudio.Manager
	sim       *gears.Simulator
	frameRate float64
	logger    *slog.Logger
}

// New builds every engine once, wires the mixer to the audio stream and the
// gear simulator to the mixer. The stream is not started.
func New(opts ...Option) (*Platform, error) {
	cfg := defaultPlatformConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	if cfg.backend == nil {
		cfg.backend = intaudio.OtoBackend{}
	}
	if !cfg.selected.Valid() {
		return nil, fmt.Errorf("fantagal: invalid selected slot %d", cfg.selected)
	}

	mixOpts := []mixer.Option{
		mixer.WithLogger(cfg.logger),
		mixer.WithEnabled(cfg.enabled...),
		mixer.WithSelected(cfg.selected),
	}
	if cfg.sampleTap != nil {
		mixOpts = append(mixOpts, mixer.WithTap(cfg.sampleTap))
	}
	mx := mixer.New(newEngines(cfg.sampleRate), mixOpts...)

	simOpts := []gears.Option{gears.WithLogger(cfg.logger), gears.WithMargin(cfg.margin)}
	if len(cfg.layout) > 0 {
		simOpts = append(simOpts, gears.WithLayout(cfg.layout))
	}
	sim := gears.New(mx, simOpts...)
	sim.SetEngineActive(mx.IsEngineEnabled(mixer.SlotGearheart))
	sim.Sync()

	p := &Platform{
		mixer: mx,
		manager: intaudio.NewManager(cfg.backend, mx,
			intaudio.WithLogger(cfg.logger),
			intaudio.WithSampleRate(cfg.sampleRate),
			intaudio.WithFramesPerBuffer(cfg.frames)),
		sim:       sim,
		frameRate: cfg.frameRate,
		logger:    cfg.logger,
	}
	cfg.logger.Info("platform ready",
		"backend", cfg.backend.Name(),
		"sample_rate", cfg.sampleRate,
		"frames", cfg.frames,
		"enabled", len(cfg.enabled))
	return p, nil
}

func newEngines(sampleRate int) [mixer.SlotCount]synth.Engine {
	var e [mixer.SlotCount]synth.Engine
	e[mixer.SlotCriosfera] = criosfera.New(sampleRate, criosfera.DefaultParams())
	e[mixer.SlotGearheart] = gearheart.New(sampleRate, gearheart.DefaultParams())
	e[mixer.SlotEchoVessel] = echovessel.New(sampleRate, echovessel.DefaultParams())
	e[mixer.SlotVocoder] = vocoder.New(sampleRate, vocoder.DefaultParams())
	e[mixer.SlotBreitema] = breitema.New(sampleRate, breitema.DefaultParams())
	return e
}

// Start opens the audio stream. It is a no-op when already running.
func (p *Platform) Start() error { return p.manager.Start() }

// Stop closes the audio stream; no callback runs after it returns.
func (p *Platform) Stop() { p.manager.Stop() }

func (p *Platform) Running() bool { return p.manager.Running() }

func (p *Platform) SampleRate() int { return p.manager.SampleRate() }

func (p *Platform) FramesPerBuffer() int { return p.manager.FramesPerBuffer() }

// Restarts counts automatic stream restarts after device loss.
func (p *Platform) Restarts() int { return p.manager.Restarts() }

func (p *Platform) BackendName() string { return p.manager.BackendName() }

// SetEngineEnabled switches a slot on or off. Enabling the gear engine also
// starts the driver gear.
func (p *Platform) SetEngineEnabled(s mixer.Slot, enabled bool) {
	p.mixer.SetEngineEnabled(s, enabled)
	if s == mixer.SlotGearheart {
		p.sim.SetEngineActive(enabled)
	}
}

func (p *Platform) IsEngineEnabled(s mixer.Slot) bool { return p.mixer.IsEngineEnabled(s) }

func (p *Platform) SetSelectedEngine(s mixer.Slot) { p.mixer.SetSelectedEngine(s) }

func (p *Platform) SelectedEngine() mixer.Slot { return p.mixer.SelectedEngine() }

// UpdateParameters applies p to every slot.
//
// Deprecated: use UpdateEngineParameters.
func (p *Platform) UpdateParameters(params synth.Params) { p.mixer.UpdateParameters(params) }

func (p *Platform) UpdateEngineParameters(s mixer.Slot, params synth.Params) {
	p.mixer.UpdateEngineParameters(s, params)
}

func (p *Platform) Parameters() synth.Params { return p.mixer.Parameters() }

func (p *Platform) EngineParameters(s mixer.Slot) synth.Params { return p.mixer.EngineParameters(s) }

func (p *Platform) PlayNote(freq, velocity float32) synth.NoteHandle {
	return p.mixer.PlayNote(freq, velocity)
}

func (p *Platform) StopNote(h synth.NoteHandle) { p.mixer.StopNote(h) }

// GearData writes the gear table in the flat stride-10 layout.
func (p *Platform) GearData(dst []float32) int { return p.mixer.GearData(dst) }

// RestoreGears applies a flat gear table, as written by GearData, to the
// simulator. It returns the number of gears updated.
func (p *Platform) RestoreGears(data []float32) int {
	n := p.sim.Restore(gears.Decode(data, len(data)/gears.Stride))
	p.sim.Sync()
	return n
}

func (p *Platform) Gears() []gears.Gear { return p.sim.Gears() }

func (p *Platform) BeginDrag(id int) bool { return p.sim.BeginDrag(id) }

func (p *Platform) DragTo(id int, x, y float32) bool { return p.sim.DragTo(id, x, y) }

func (p *Platform) EndDrag(id int) { p.sim.EndDrag(id) }

// StepGears runs a single simulation frame.
func (p *Platform) StepGears() { p.sim.Step() }

// RunGears runs the simulation at the configured frame rate until ctx is
// done.
func (p *Platform) RunGears(ctx context.Context) error {
	return p.sim.Run(ctx, time.Duration(float64(time.Second)/p.frameRate))
}

func (p *Platform) ToggleStep(step int) { p.mixer.ToggleStep(step) }

func (p *Platform) SetSequencerPlaying(playing bool) { p.mixer.SetSequencerPlaying(playing) }

func (p *Platform) SetRhythmMode(mode synth.RhythmMode) { p.mixer.SetRhythmMode(mode) }

func (p *Platform) GeneratePattern() { p.mixer.GeneratePattern() }

// SequencerData writes the 38-entry sequencer snapshot, or returns 0 when
// dst is too small.
func (p *Platform) SequencerData(dst []float32) int { return p.mixer.SequencerData(dst) }

// SetVocoderModulator loads the looping modulator signal (mono).
func (p *Platform) SetVocoderModulator(samples []float32) { p.mixer.SetVocoderModulator(samples) }

func (p *Platform) VocoderLevel() float32 { return p.mixer.VocoderLevel() }
