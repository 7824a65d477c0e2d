package orchestrator

import "context"

// Recorder owns the capture device. Stop returns everything captured since
// Start and releases the device; Cancel releases it and discards the
// samples.
type Recorder interface {
	Start() error
	Stop() []float32
	Cancel()
}

// Transcriber converts captured samples to text. An empty string with a
// nil error means the server heard no speech.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Delivery places transcribed text at the user's cursor.
type Delivery interface {
	Deliver(text string, autoSubmit bool) error
}

// Reconfigurer applies a model change to the transcription backend. It may
// block for the duration of a container recreate.
type Reconfigurer interface {
	Apply(cfg ModelConfig) error
}

// Feedback plays audible cues for lifecycle transitions.
type Feedback interface {
	PlayStart()
	PlayStop()
	PlayCancel()
}

// StatusSink receives state transitions, e.g. for a tray icon.
type StatusSink interface {
	SetState(State)
}

type NopFeedback struct{}

func (NopFeedback) PlayStart()  {}
func (NopFeedback) PlayStop()   {}
func (NopFeedback) PlayCancel() {}

type NopStatusSink struct{}

func (NopStatusSink) SetState(State) {}
