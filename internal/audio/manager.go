package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	DefaultSampleRate      = 48000
	DefaultFramesPerBuffer = 256
)

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithSampleRate(sr int) Option {
	return func(m *Manager) {
		if sr > 0 {
			m.cfg.SampleRate = sr
		}
	}
}

func WithFramesPerBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.cfg.FramesPerBuffer = n
		}
	}
}

// Manager owns at most one output stream and restarts it when the device
// disconnects.
type Manager struct {
	mu       sync.Mutex
	backend  Backend
	renderer Renderer
	cfg      StreamConfig
	stream   Stream
	gen      uint64
	restarts int
	logger   *slog.Logger
}

func NewManager(b Backend, r Renderer, opts ...Option) *Manager {
	m := &Manager{
		backend:  b,
		renderer: r,
		cfg: StreamConfig{
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        2,
			LowLatency:      true,
			Exclusive:       true,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens and starts a stream. It returns nil when already running.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if m.stream != nil {
		return nil
	}
	m.gen++
	gen := m.gen
	s, err := m.backend.Open(m.cfg, m.renderer.Process, func(err error) {
		m.handleError(gen, err)
	})
	if err != nil {
		m.logger.Error("open audio stream", "backend", m.backend.Name(), "err", err)
		return fmt.Errorf("audio: open %s stream: %w", m.backend.Name(), err)
	}
	if sr := s.SampleRate(); sr > 0 {
		m.cfg.SampleRate = sr
	}
	if n := s.FramesPerBuffer(); n > 0 {
		m.cfg.FramesPerBuffer = n
	}
	m.renderer.Prepare(m.cfg.SampleRate, m.cfg.FramesPerBuffer)
	if err := s.Start(); err != nil {
		s.Close()
		m.logger.Error("start audio stream", "backend", m.backend.Name(), "err", err)
		return fmt.Errorf("audio: start %s stream: %w", m.backend.Name(), err)
	}
	m.stream = s
	m.logger.Info("audio stream started",
		"backend", m.backend.Name(),
		"sample_rate", m.cfg.SampleRate,
		"frames", m.cfg.FramesPerBuffer)
	return nil
}

// Stop halts and releases the stream. It is a no-op when nothing runs.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.stream == nil {
		return
	}
	s := m.stream
	m.stream = nil
	if err := s.Stop(); err != nil {
		m.logger.Warn("stop audio stream", "err", err)
	}
	if err := s.Close(); err != nil {
		m.logger.Warn("close audio stream", "err", err)
	}
	m.logger.Info("audio stream stopped", "backend", m.backend.Name())
}

func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.stream == nil {
		m.logger.Debug("ignoring error from stale stream", "err", err)
		return
	}
	if !errors.Is(err, ErrDisconnected) {
		m.logger.Warn("audio stream error", "err", err)
		return
	}
	m.logger.Warn("audio device disconnected, restarting", "err", err)
	m.stopLocked()
	m.restarts++
	if err := m.startLocked(); err != nil {
		m.logger.Error("restart audio stream", "err", err)
	}
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// SampleRate returns the last granted (or requested) sample rate.
func (m *Manager) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.SampleRate
}

func (m *Manager) FramesPerBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.FramesPerBuffer
}

// Restarts counts automatic restarts after disconnects.
func (m *Manager) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

func (m *Manager) BackendName() string { return m.backend.Name() }
