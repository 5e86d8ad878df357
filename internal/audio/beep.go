package audio

import (
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerErr  error
	speakerRate int
	speakerBuf  int
)

func initSpeaker(sampleRate, framesPerBuffer int) error {
	speakerOnce.Do(func() {
		speakerRate = sampleRate
		speakerBuf = framesPerBuffer
		speakerErr = speaker.Init(beep.SampleRate(sampleRate), framesPerBuffer)
	})
	return speakerErr
}

// BeepBackend plays through the beep speaker. The speaker is initialized
// once; later streams inherit its rate and buffer size.
type BeepBackend struct{}

func (BeepBackend) Name() string { return "beep" }

func (BeepBackend) Open(cfg StreamConfig, cb Callback, _ func(error)) (Stream, error) {
	if err := initSpeaker(cfg.SampleRate, cfg.FramesPerBuffer); err != nil {
		return nil, err
	}
	cfg.SampleRate = speakerRate
	cfg.FramesPerBuffer = speakerBuf
	return &beepStream{cb: cb, cfg: cfg, buf: make([]float32, speakerBuf*2)}, nil
}

// beepStream pulls from the callback as a beep.Streamer.
type beepStream struct {
	mu     sync.Mutex
	cb     Callback
	cfg    StreamConfig
	buf    []float32
	closed bool
}

var _ beep.Streamer = (*beepStream)(nil)

func (s *beepStream) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	chunk := len(s.buf) / 2
	for done := 0; done < len(samples); {
		n := min(chunk, len(samples)-done)
		s.cb(s.buf[:n*2], n)
		for i := 0; i < n; i++ {
			samples[done+i][0] = float64(s.buf[i*2])
			samples[done+i][1] = float64(s.buf[i*2+1])
		}
		done += n
	}
	return len(samples), true
}

func (s *beepStream) Err() error { return nil }

func (s *beepStream) Start() error {
	speaker.Play(s)
	return nil
}

func (s *beepStream) Stop() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	speaker.Clear()
	return nil
}

func (s *beepStream) Close() error { return nil }

func (s *beepStream) SampleRate() int      { return s.cfg.SampleRate }
func (s *beepStream) FramesPerBuffer() int { return s.cfg.FramesPerBuffer }
