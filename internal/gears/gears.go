// Package gears simulates the mechanical network that drives the gear
// engine. Motion starts at a fixed driver and spreads to every gear within
// meshing distance, inverting direction and scaling speed by the radius
// ratio at each hop.
package gears

import (
	"math"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

const (
	// DriverID is the fixed gear that receives motion.
	DriverID = 0
	// DriverSpeed is the driver's angular speed in radians per frame.
	DriverSpeed = 0.02
	// Unreachable is the depth of a gear with no path to the driver.
	Unreachable = 999
	// MaxPasses bounds the propagation flood fill.
	MaxPasses = 10
	// ResyncInterval is the number of frames between full position pushes.
	ResyncInterval = 60
	// DefaultMargin is the meshing tolerance added to the radius sum.
	DefaultMargin = 15
	// Stride is the number of floats per gear in the flat exchange layout.
	Stride = 10
)

// Gear is one node of the network.
type Gear struct {
	ID        int
	X, Y      float32
	Radius    float32
	Teeth     int
	Angle     float32
	Speed     float32
	Connected bool
	Depth     int
	Material  synth.Material
	Dragging  bool
}

// State converts g to the engine-side view.
func (g Gear) State() synth.GearState {
	return synth.GearState{
		ID:        g.ID,
		X:         g.X,
		Y:         g.Y,
		Speed:     g.Speed,
		Connected: g.Connected,
		Material:  g.Material,
		Radius:    g.Radius,
		Depth:     g.Depth,
		Teeth:     g.Teeth,
		Angle:     g.Angle,
	}
}

// FromState builds a Gear from its engine-side view. Drag state is not
// carried.
func FromState(s synth.GearState) Gear {
	return Gear{
		ID:        s.ID,
		X:         s.X,
		Y:         s.Y,
		Radius:    s.Radius,
		Teeth:     s.Teeth,
		Angle:     s.Angle,
		Speed:     s.Speed,
		Connected: s.Connected,
		Depth:     s.Depth,
		Material:  s.Material,
	}
}

// DefaultLayout returns the startup network, all gears idle.
func DefaultLayout() []Gear {
	states := synth.DefaultGears()
	out := make([]Gear, len(states))
	for i, s := range states {
		out[i] = FromState(s)
		if s.ID != DriverID {
			out[i].Depth = Unreachable
		}
	}
	return out
}

// Meshes reports whether b is within meshing distance of a.
func Meshes(a, b Gear, margin float32) bool {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Hypot(dx, dy) < float64(a.Radius+b.Radius+margin)
}

// Decode reverses the flat exchange layout written by the mixer. It reads
// at most n gears, bounded by len(data)/Stride.
func Decode(data []float32, n int) []Gear {
	if limit := len(data) / Stride; n > limit {
		n = limit
	}
	if n <= 0 {
		return nil
	}
	out := make([]Gear, n)
	for i := range out {
		row := data[i*Stride : (i+1)*Stride]
		out[i] = Gear{
			ID:        int(row[0]),
			X:         row[1],
			Y:         row[2],
			Speed:     row[3],
			Connected: row[4] != 0,
			Material:  synth.Material(row[5]),
			Radius:    row[6],
			Depth:     int(row[7]),
			Teeth:     int(row[8]),
			Angle:     row[9],
		}
	}
	return out
}
