package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const otoErrPoll = 50 * time.Millisecond

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

// sharedOtoContext creates the process-wide oto context on first use. oto
// allows a single context per process.
func sharedOtoContext(sampleRate, framesPerBuffer int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(framesPerBuffer) * time.Second / time.Duration(sampleRate),
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoBackend plays through oto, the default low-latency path.
type OtoBackend struct{}

func (OtoBackend) Name() string { return "oto" }

func (OtoBackend) Open(cfg StreamConfig, cb Callback, onError func(error)) (Stream, error) {
	ctx, err := sharedOtoContext(cfg.SampleRate, cfg.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(cb, cfg.FramesPerBuffer)
	pl := ctx.NewPlayer(reader)
	pl.SetBufferSize(cfg.FramesPerBuffer * 8)
	return &otoStream{
		player:  pl,
		reader:  reader,
		cfg:     cfg,
		onError: onError,
		done:    make(chan struct{}),
	}, nil
}

type otoStream struct {
	player   *oto.Player
	reader   *StreamReader
	cfg      StreamConfig
	onError  func(error)
	done     chan struct{}
	stopOnce sync.Once
}

func (s *otoStream) Start() error {
	s.player.Play()
	go s.watch()
	return nil
}

// watch polls the player for a device error. It exits on Stop without being
// waited for, so the error handler may call Stop itself.
func (s *otoStream) watch() {
	t := time.NewTicker(otoErrPoll)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.player.Err(); err != nil {
				if s.onError != nil {
					s.onError(fmt.Errorf("%w: %v", ErrDisconnected, err))
				}
				return
			}
		}
	}
}

func (s *otoStream) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })
	if err := s.reader.Close(); err != nil {
		return err
	}
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error { return s.player.Close() }

func (s *otoStream) SampleRate() int      { return s.cfg.SampleRate }
func (s *otoStream) FramesPerBuffer() int { return s.cfg.FramesPerBuffer }
