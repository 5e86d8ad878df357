package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// HeadlessBackend renders without a device. Streams are driven by Pull or,
// when Clocked is set, by a ticker running at the buffer period.
type HeadlessBackend struct {
	// GrantSampleRate and GrantFrames override the requested values when
	// non-zero.
	GrantSampleRate int
	GrantFrames     int
	// FailOpen makes Open return this error.
	FailOpen error
	Clocked  bool

	mu      sync.Mutex
	streams []*HeadlessStream
}

func (b *HeadlessBackend) Name() string { return "headless" }

func (b *HeadlessBackend) Open(cfg StreamConfig, cb Callback, onError func(error)) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOpen != nil {
		return nil, b.FailOpen
	}
	if b.GrantSampleRate > 0 {
		cfg.SampleRate = b.GrantSampleRate
	}
	if b.GrantFrames > 0 {
		cfg.FramesPerBuffer = b.GrantFrames
	}
	s := &HeadlessStream{
		cfg:     cfg,
		cb:      cb,
		onError: onError,
		buf:     make([]float32, cfg.FramesPerBuffer*2),
		clocked: b.Clocked,
	}
	b.streams = append(b.streams, s)
	return s, nil
}

// Streams returns every stream opened so far, oldest first.
func (b *HeadlessBackend) Streams() []*HeadlessStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*HeadlessStream(nil), b.streams...)
}

// Last returns the most recently opened stream, or nil.
func (b *HeadlessBackend) Last() *HeadlessStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

var errStreamClosed = errors.New("audio: stream closed")

// HeadlessStream is a device-less stream.
type HeadlessStream struct {
	mu      sync.Mutex
	cfg     StreamConfig
	cb      Callback
	onError func(error)
	buf     []float32
	running bool
	closed  bool
	pulls   int
	clocked bool
	cancel  context.CancelFunc
}

func (s *HeadlessStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	s.running = true
	if s.clocked && s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.clock(ctx)
	}
	return nil
}

func (s *HeadlessStream) clock(ctx context.Context) {
	period := time.Duration(s.cfg.FramesPerBuffer) * time.Second / time.Duration(s.cfg.SampleRate)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Pull()
		}
	}
}

// Pull runs one callback of FramesPerBuffer frames and returns the rendered
// buffer, or nil when the stream is not running. The slice is reused.
func (s *HeadlessStream) Pull() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.cb(s.buf, s.cfg.FramesPerBuffer)
	s.pulls++
	return s.buf
}

// Disconnect simulates a device loss.
func (s *HeadlessStream) Disconnect() {
	s.Fail(ErrDisconnected)
}

// Fail reports err through the stream's error handler.
func (s *HeadlessStream) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *HeadlessStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *HeadlessStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *HeadlessStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *HeadlessStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pulls counts callbacks delivered by this stream.
func (s *HeadlessStream) Pulls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls
}

func (s *HeadlessStream) SampleRate() int      { return s.cfg.SampleRate }
func (s *HeadlessStream) FramesPerBuffer() int { return s.cfg.FramesPerBuffer }
