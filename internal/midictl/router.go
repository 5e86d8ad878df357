// Package midictl routes MIDI note and controller messages to the mixer.
package midictl

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

// Player is the note surface the router drives.
type Player interface {
	PlayNote(freq, velocity float32) synth.NoteHandle
	StopNote(h synth.NoteHandle)
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithControlChange installs a handler for controller messages. value is
// normalized to [0,1].
func WithControlChange(fn func(channel, controller uint8, value float32)) Option {
	return func(r *Router) { r.onCC = fn }
}

// Router keeps the handle of every held key so note-offs reach the note
// that the matching note-on started.
type Router struct {
	mu     sync.Mutex
	player Player
	held   map[uint16]synth.NoteHandle
	onCC   func(channel, controller uint8, value float32)
	logger *slog.Logger
}

func NewRouter(p Player, opts ...Option) *Router {
	r := &Router{
		player: p,
		held:   make(map[uint16]synth.NoteHandle),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle dispatches one message. Unsupported messages are ignored.
func (r *Router) Handle(msg gomidi.Message) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		r.NoteOn(ch, key, vel)
	case msg.GetNoteEnd(&ch, &key):
		r.NoteOff(ch, key)
	case msg.GetControlChange(&ch, &cc, &val):
		if r.onCC != nil {
			r.onCC(ch, cc, float32(val)/127)
		}
	}
}

// NoteOn plays key on the mixer. A key already held is stopped first.
func (r *Router) NoteOn(channel, key, velocity uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := heldKey(channel, key)
	if h, ok := r.held[k]; ok {
		r.player.StopNote(h)
		delete(r.held, k)
	}
	h := r.player.PlayNote(KeyToFreq(key), float32(velocity)/127)
	if h == synth.NoNote {
		r.logger.Debug("note refused", "channel", channel, "key", key)
		return
	}
	r.held[k] = h
}

func (r *Router) NoteOff(channel, key uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := heldKey(channel, key)
	if h, ok := r.held[k]; ok {
		r.player.StopNote(h)
		delete(r.held, k)
	}
}

// AllNotesOff stops every held note.
func (r *Router) AllNotesOff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.held {
		r.player.StopNote(h)
		delete(r.held, k)
	}
}

// Held returns the number of keys currently down.
func (r *Router) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

// Listen opens the named input port and feeds it to r until stop is called.
// A driver must be registered by the caller.
func Listen(port string, r *Router) (stop func(), err error) {
	in, err := gomidi.FindInPort(port)
	if err != nil {
		return nil, fmt.Errorf("midi: find input %q: %w", port, err)
	}
	stopFn, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		r.Handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("midi: listen to %q: %w", port, err)
	}
	r.logger.Info("midi input open", "port", in.String())
	return func() {
		stopFn()
		r.AllNotesOff()
	}, nil
}

// InPorts lists the names of the available input ports.
func InPorts() []string {
	ports := gomidi.GetInPorts()
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = p.String()
	}
	return out
}

// KeyToFreq converts a MIDI key number to Hz, A4 = 440.
func KeyToFreq(key uint8) float32 {
	return float32(440 * math.Pow(2, (float64(key)-69)/12))
}

func heldKey(channel, key uint8) uint16 {
	return uint16(channel)<<8 | uint16(key)
}
