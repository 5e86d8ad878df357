package dsp

// Stage is an ADSR envelope stage.
type Stage int

const (
	StageOff Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

// ADSR is a linear attack/decay/release envelope with a held sustain level.
// Times are in seconds.
type ADSR struct {
	Attack  float32
	Decay   float32
	Sustain float32
	Release float32

	stage Stage
	level float32
}

// NoteOn restarts the envelope from its current level.
func (a *ADSR) NoteOn() { a.stage = StageAttack }

// NoteOff enters the release stage unless the envelope is idle.
func (a *ADSR) NoteOff() {
	if a.stage != StageOff {
		a.stage = StageRelease
	}
}

// Next advances one sample and returns the level.
func (a *ADSR) Next(sampleRate float32) float32 {
	dt := 1 / sampleRate
	switch a.stage {
	case StageAttack:
		if a.Attack <= 0 {
			a.level = 1
		} else {
			a.level += dt / a.Attack
		}
		if a.level >= 1 {
			a.level = 1
			a.stage = StageDecay
		}
	case StageDecay:
		if a.Decay <= 0 {
			a.level = a.Sustain
		} else {
			a.level -= dt / a.Decay * (1 - a.Sustain)
		}
		if a.level <= a.Sustain {
			a.level = a.Sustain
			a.stage = StageSustain
		}
	case StageRelease:
		if a.Release <= 0 {
			a.level = 0
		} else {
			a.level -= dt / a.Release
		}
		if a.level <= 0 {
			a.level = 0
			a.stage = StageOff
		}
	}
	return a.level
}

func (a *ADSR) Stage() Stage { return a.stage }

func (a *ADSR) Level() float32 { return a.level }

// Active reports whether the envelope is producing output.
func (a *ADSR) Active() bool { return a.stage != StageOff }

func (a *ADSR) Reset() {
	a.stage = StageOff
	a.level = 0
}
