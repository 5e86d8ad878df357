package main

import (
	"github.com/tonetxo/fantagal-go/internal/synth"
)

var paramNames = [5]string{"pressure", "resonance", "viscosity", "turbulence", "diffusion"}

// ccBase is the first controller mapped to a parameter; CC 20..24 drive the
// selected engine's five controls.
const ccBase = 20

func paramAt(p synth.Params, i int) float32 {
	switch i {
	case 0:
		return p.Pressure
	case 1:
		return p.Resonance
	case 2:
		return p.Viscosity
	case 3:
		return p.Turbulence
	case 4:
		return p.Diffusion
	}
	return 0
}

func withParam(p synth.Params, i int, v float32) synth.Params {
	switch i {
	case 0:
		p.Pressure = v
	case 1:
		p.Resonance = v
	case 2:
		p.Viscosity = v
	case 3:
		p.Turbulence = v
	case 4:
		p.Diffusion = v
	}
	return p.Clamped()
}

// ccParam maps a controller number to a parameter index.
func ccParam(controller uint8) (int, bool) {
	i := int(controller) - ccBase
	return i, i >= 0 && i < len(paramNames)
}

// keyRow maps the home-row piano layout to semitones above the base octave.
var keyRow = map[string]int{
	"a": 0, "w": 1, "s": 2, "e": 3, "d": 4, "f": 5, "t": 6,
	"g": 7, "y": 8, "h": 9, "u": 10, "j": 11, "k": 12,
}

// keyNote returns the MIDI key for a console key at the given octave.
func keyNote(key string, octave int) (uint8, bool) {
	semi, ok := keyRow[key]
	if !ok {
		return 0, false
	}
	n := 12*(octave+1) + semi
	if n < 0 || n > 127 {
		return 0, false
	}
	return uint8(n), true
}
