package synth

// Params holds the five normalized controls shared by every engine. Their
// meaning is overloaded per engine.
type Params struct {
	Pressure   float32
	Resonance  float32
	Viscosity  float32
	Turbulence float32
	Diffusion  float32
}

// DefaultParams returns every control at its midpoint.
func DefaultParams() Params {
	return Params{
		Pressure:   0.5,
		Resonance:  0.5,
		Viscosity:  0.5,
		Turbulence: 0.5,
		Diffusion:  0.5,
	}
}

// Clamped returns p with every field limited to [0,1]. NaN maps to 0.
func (p Params) Clamped() Params {
	return Params{
		Pressure:   unit(p.Pressure),
		Resonance:  unit(p.Resonance),
		Viscosity:  unit(p.Viscosity),
		Turbulence: unit(p.Turbulence),
		Diffusion:  unit(p.Diffusion),
	}
}

func unit(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Material selects the drum voice a gear triggers.
type Material int

const (
	MaterialIron Material = iota
	MaterialBronze
	MaterialCopper
	MaterialGold
	MaterialPlatinum
)

var materialNames = [...]string{"iron", "bronze", "copper", "gold", "platinum"}

func (m Material) String() string {
	if m < 0 || int(m) >= len(materialNames) {
		return "unknown"
	}
	return materialNames[m]
}

// ParseMaterial maps a material name to its Material.
func ParseMaterial(name string) (Material, bool) {
	for i, n := range materialNames {
		if n == name {
			return Material(i), true
		}
	}
	return 0, false
}

// GearState is the audio-side view of one gear.
type GearState struct {
	ID        int
	X, Y      float32
	Speed     float32
	Connected bool
	Material  Material
	Radius    float32
	Depth     int
	Teeth     int
	Angle     float32
}

// NumSteps is the length of the step sequencer pattern.
const NumSteps = 16

// RhythmMode selects the step grid and pattern template.
type RhythmMode int

const (
	RhythmLibre RhythmMode = iota
	RhythmMuineira
	RhythmRibeirada
)

// Valid reports whether m names a known rhythm mode.
func (m RhythmMode) Valid() bool {
	return m >= RhythmLibre && m <= RhythmRibeirada
}

// SequencerState is a snapshot of a step sequencer.
type SequencerState struct {
	CurrentStep   int
	RhythmMode    RhythmMode
	Playing       bool
	Probabilities [NumSteps]float32
	Steps         [NumSteps]bool
	FogDensity    float32
	FogMovement   float32
	FMDepth       float32
}

// DefaultGears returns the startup layout: the driver at the bottom center
// and four movable gears around it.
func DefaultGears() []GearState {
	return []GearState{
		{ID: 0, X: 540, Y: 1000, Radius: 100, Teeth: 14, Material: MaterialIron},
		{ID: 1, X: 540, Y: 750, Radius: 60, Teeth: 8, Material: MaterialBronze},
		{ID: 2, X: 340, Y: 1050, Radius: 50, Teeth: 6, Material: MaterialCopper},
		{ID: 3, X: 740, Y: 1050, Radius: 80, Teeth: 10, Material: MaterialGold},
		{ID: 4, X: 540, Y: 500, Radius: 40, Teeth: 5, Material: MaterialPlatinum},
	}
}
