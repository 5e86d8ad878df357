package gears

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

// Sink receives the simulation results, normally the mixer.
type Sink interface {
	UpdateGear(g synth.GearState)
	UpdateGearPosition(id int, x, y float32)
}

type Option func(*Simulator)

func WithLayout(gs []Gear) Option {
	return func(s *Simulator) {
		if len(gs) > 0 {
			s.gears = append([]Gear(nil), gs...)
		}
	}
}

// WithMargin sets the meshing tolerance added to the radius sum.
func WithMargin(m float32) Option {
	return func(s *Simulator) {
		if m >= 0 {
			s.margin = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// Simulator owns the gear network. Its mutex is always taken before any
// lock inside the sink.
type Simulator struct {
	mu     sync.Mutex
	gears  []Gear
	sink   Sink
	active bool
	margin float32
	frame  uint64
	logger *slog.Logger
}

// New creates a simulator over the default layout unless WithLayout is
// given. sink may be nil.
func New(sink Sink, opts ...Option) *Simulator {
	s := &Simulator{
		gears:  DefaultLayout(),
		sink:   sink,
		margin: DefaultMargin,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEngineActive turns the driver on or off from the next frame.
func (s *Simulator) SetEngineActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

func (s *Simulator) EngineActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Step runs one frame: reset, propagate, integrate angles and push every
// gear to the sink. Positions are resynced every ResyncInterval frames,
// starting with the first.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.propagate()
	for i := range s.gears {
		g := &s.gears[i]
		g.Angle = wrapAngle(g.Angle + g.Speed)
	}
	if s.sink == nil {
		s.frame++
		return
	}
	resync := s.frame%ResyncInterval == 0
	for _, g := range s.gears {
		s.sink.UpdateGear(g.State())
		if resync {
			s.sink.UpdateGearPosition(g.ID, g.X, g.Y)
		}
	}
	s.frame++
}

// Sync pushes every gear's state and position to the sink without
// advancing the frame.
func (s *Simulator) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return
	}
	for _, g := range s.gears {
		s.sink.UpdateGear(g.State())
		s.sink.UpdateGearPosition(g.ID, g.X, g.Y)
	}
}

// Propagate recomputes speed, connectivity and depth without advancing the
// frame counter or notifying the sink.
func (s *Simulator) Propagate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.propagate()
}

func (s *Simulator) propagate() {
	for i := range s.gears {
		g := &s.gears[i]
		if g.ID == DriverID {
			g.Connected = s.active && g.Radius > 0
			g.Speed = 0
			if g.Connected {
				g.Speed = DriverSpeed
			}
			g.Depth = 0
			continue
		}
		if g.Dragging {
			continue
		}
		g.Connected = false
		g.Speed = 0
		g.Depth = Unreachable
	}

	sources := make([]bool, len(s.gears))
	for pass := 0; pass < MaxPasses; pass++ {
		for i, g := range s.gears {
			sources[i] = g.Connected && !g.Dragging && g.Radius > 0
		}
		changed := false
		for i := range s.gears {
			if !sources[i] {
				continue
			}
			a := s.gears[i]
			for j := range s.gears {
				b := &s.gears[j]
				if b.Connected || b.Dragging || b.Radius <= 0 {
					continue
				}
				if !Meshes(a, *b, s.margin) {
					continue
				}
				b.Connected = true
				b.Speed = -a.Speed * (a.Radius / b.Radius)
				b.Depth = a.Depth + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

// BeginDrag freezes gear id's derived state while it is moved. The driver
// cannot be dragged.
func (s *Simulator) BeginDrag(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.find(id)
	if g == nil || g.ID == DriverID {
		return false
	}
	g.Dragging = true
	return true
}

// DragTo moves a dragged gear and pushes its position immediately.
func (s *Simulator) DragTo(id int, x, y float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.find(id)
	if g == nil || !g.Dragging {
		return false
	}
	g.X, g.Y = x, y
	if s.sink != nil {
		s.sink.UpdateGearPosition(id, x, y)
	}
	return true
}

func (s *Simulator) EndDrag(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.find(id); g != nil {
		g.Dragging = false
	}
}

// Restore applies layout fields (position, angle, radius, teeth, material)
// from gs to gears with matching IDs. Unknown IDs are ignored.
func (s *Simulator) Restore(gs []Gear) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, in := range gs {
		g := s.find(in.ID)
		if g == nil {
			s.logger.Debug("restore: unknown gear", "id", in.ID)
			continue
		}
		g.X, g.Y = in.X, in.Y
		g.Angle = in.Angle
		g.Radius = in.Radius
		g.Teeth = in.Teeth
		g.Material = in.Material
		n++
	}
	return n
}

// Gears returns a copy of the network.
func (s *Simulator) Gears() []Gear {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Gear(nil), s.gears...)
}

func (s *Simulator) Gear(id int) (Gear, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.find(id); g != nil {
		return *g, true
	}
	return Gear{}, false
}

// Frame returns the number of completed Steps.
func (s *Simulator) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Run steps the simulation every period until ctx is done. Frames never
// overlap: the next delay starts after the previous Step returns.
func (s *Simulator) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = time.Second / 60
	}
	s.logger.Info("gear simulation started", "period", period)
	timer := time.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("gear simulation stopped", "frames", s.Frame())
			return nil
		case <-timer.C:
			s.Step()
			timer.Reset(period)
		}
	}
}

func (s *Simulator) find(id int) *Gear {
	for i := range s.gears {
		if s.gears[i].ID == id {
			return &s.gears[i]
		}
	}
	return nil
}

func wrapAngle(a float32) float32 {
	const twoPi = 2 * math.Pi
	if a >= twoPi || a <= -twoPi {
		a = float32(math.Mod(float64(a), twoPi))
	}
	return a
}
