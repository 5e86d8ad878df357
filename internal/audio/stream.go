package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// StreamReader adapts a Callback to the io.Reader pull model used by oto and
// ebiten. Samples are encoded as interleaved float32 little endian.
type StreamReader struct {
	mu     sync.Mutex
	cb     Callback
	buf    []float32
	closed bool
}

// NewStreamReader renders at most framesPerChunk frames per callback
// invocation; larger reads are served in several chunks.
func NewStreamReader(cb Callback, framesPerChunk int) *StreamReader {
	if framesPerChunk < 1 {
		framesPerChunk = 256
	}
	return &StreamReader{cb: cb, buf: make([]float32, framesPerChunk*2)}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	chunk := len(r.buf) / 2
	done := 0
	for done < frames {
		n := min(chunk, frames-done)
		samples := r.buf[:n*2]
		r.cb(samples, n)
		off := done * 8
		for i, v := range samples {
			binary.LittleEndian.PutUint32(p[off+i*4:], math.Float32bits(v))
		}
		done += n
	}
	return frames * 8, nil
}

// Close stops further callbacks. Once it returns the callback is not running
// and will not run again.
func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (r *StreamReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
