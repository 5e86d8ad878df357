package audio

import "errors"

// ErrDisconnected reports that the output device went away. The Manager
// restarts the stream once per such event.
var ErrDisconnected = errors.New("audio: device disconnected")

// Callback fills frames of interleaved stereo float32 into dst. It runs on
// the backend's audio thread.
type Callback func(dst []float32, frames int)

// Renderer is the mixer side of a stream.
type Renderer interface {
	// Prepare is called with the granted configuration before the stream
	// starts, outside the audio thread.
	Prepare(sampleRate, framesPerBuffer int)
	Process(dst []float32, frames int)
}

// StreamConfig is the requested stream shape. Backends may grant a
// different sample rate or buffer size.
type StreamConfig struct {
	SampleRate      int
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
	Exclusive       bool
}

// Stream is one opened output stream.
type Stream interface {
	Start() error
	// Stop halts callbacks; after it returns the callback will not fire
	// again. It must not wait on goroutines that may call the error
	// handler.
	Stop() error
	Close() error
	SampleRate() int
	FramesPerBuffer() int
}

// Backend opens output streams on a device API.
type Backend interface {
	Name() string
	// Open creates a stream. onError may be called from any goroutine,
	// including after Stop for stale events.
	Open(cfg StreamConfig, cb Callback, onError func(error)) (Stream, error)
}
