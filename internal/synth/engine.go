package synth

// NoteHandle identifies a sounding note for a later StopNote. It is only
// unique while the note lives.
type NoteHandle int32

// NoNote is returned by PlayNote when no engine accepted the note.
const NoNote NoteHandle = -1

// Engine is the contract every instrument slot implements.
type Engine interface {
	// Prepare is called on every stream (re)configuration; it may allocate.
	Prepare(sampleRate int, framesPerBuffer int)
	// Process fills frames of interleaved stereo into dst. It runs on the
	// audio thread and must not block or allocate.
	Process(dst []float32, frames int)
	// UpdateParameters applies the five normalized controls; the mapping is
	// engine-defined.
	UpdateParameters(p Params)
	PlayNote(frequency float32, velocity float32) NoteHandle
	// StopNote is a no-op for unknown handles.
	StopNote(h NoteHandle)
	// Reset returns the engine to its initial state.
	Reset()
}

// GearController is implemented by engines driven by the gear network.
type GearController interface {
	UpdateGear(g GearState)
	UpdateGearPosition(id int, x, y float32)
	// GearStates copies the current gear table into dst and returns the
	// number of entries written.
	GearStates(dst []GearState) int
}

// StepSequencer is implemented by engines with an internal step clock.
type StepSequencer interface {
	ToggleStep(step int)
	SetPlaying(playing bool)
	SetRhythmMode(mode RhythmMode)
	GeneratePattern()
	SequencerState() SequencerState
}

// CarrierSink receives the mono downmix of the other engines before its
// Process call in the same callback.
type CarrierSink interface {
	SetCarrier(carrier []float32)
}

// ModulatorSink accepts an external mono signal (e.g. a recorded voice).
// SetModulator takes ownership of samples.
type ModulatorSink interface {
	SetModulator(samples []float32)
	ModulatorLevel() float32
}
