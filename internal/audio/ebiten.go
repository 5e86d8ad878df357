package audio

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// EbitenBackend plays through ebiten's audio context. It has no disconnect
// signal.
type EbitenBackend struct{}

func (EbitenBackend) Name() string { return "ebiten" }

func (EbitenBackend) Open(cfg StreamConfig, cb Callback, _ func(error)) (Stream, error) {
	ctx, err := sharedAudioContext(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(cb, cfg.FramesPerBuffer)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	pl.SetBufferSize(time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate))
	return &ebitenStream{player: pl, reader: reader, cfg: cfg}, nil
}

type ebitenStream struct {
	player *ebitaudio.Player
	reader *StreamReader
	cfg    StreamConfig
}

func (s *ebitenStream) Start() error {
	s.player.Play()
	return nil
}

func (s *ebitenStream) Stop() error {
	if err := s.reader.Close(); err != nil {
		return err
	}
	s.player.Pause()
	return nil
}

func (s *ebitenStream) Close() error { return s.player.Close() }

func (s *ebitenStream) SampleRate() int      { return s.cfg.SampleRate }
func (s *ebitenStream) FramesPerBuffer() int { return s.cfg.FramesPerBuffer }
