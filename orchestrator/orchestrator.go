// Package orchestrator sequences the recording lifecycle: start recording,
// stop, transcribe, deliver, back to idle. It arbitrates concurrent hotkey
// and tray commands and serializes model changes against in-flight work.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"whisperkey/log"
	"whisperkey/models"
)

// State is the single source of truth for what may happen next.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateModelLoading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateModelLoading:
		return "model_loading"
	}
	return "unknown"
}

// ModelConfig is the user-facing transcription configuration. Model is the
// short alias; Language is an ISO code or "auto".
type ModelConfig struct {
	Model    string
	Beam     int
	Language string
}

func (c ModelConfig) normalized() ModelConfig {
	c.Beam = models.ClampBeam(c.Beam)
	return c
}

// session is the ephemeral recording state, created on start and destroyed
// on stop or cancel.
type session struct {
	startedAt time.Time
}

// Options wires the orchestrator's collaborators. Feedback and Status may
// be nil; no-op implementations are substituted.
type Options struct {
	Recorder     Recorder
	Transcriber  Transcriber
	Delivery     Delivery
	Reconfigurer Reconfigurer
	Feedback     Feedback
	Status       StatusSink
	Config       ModelConfig
	SampleRate   int
}

// Orchestrator is safe for concurrent use. The mutex guards state
// transitions only; it is never held across collaborator calls, which may
// block on network or process I/O.
type Orchestrator struct {
	mu       sync.Mutex
	state    State
	pending  *ModelConfig // at most one queued model change
	current  ModelConfig
	session  *session
	lastText string

	rec        Recorder
	asr        Transcriber
	delivery   Delivery
	reconf     Reconfigurer
	feedback   Feedback
	status     StatusSink
	sampleRate int
}

func New(opts Options) *Orchestrator {
	feedback := opts.Feedback
	if feedback == nil {
		feedback = NopFeedback{}
	}
	status := opts.Status
	if status == nil {
		status = NopStatusSink{}
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Orchestrator{
		state:      StateIdle,
		current:    opts.Config.normalized(),
		rec:        opts.Recorder,
		asr:        opts.Transcriber,
		delivery:   opts.Delivery,
		reconf:     opts.Reconfigurer,
		feedback:   feedback,
		status:     status,
		sampleRate: sampleRate,
	}
}

// State reads the current lifecycle state under the same lock used for
// all transitions.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the active model configuration.
func (o *Orchestrator) Config() ModelConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// LastTranscript returns the most recently delivered text.
func (o *Orchestrator) LastTranscript() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastText
}

// Toggle stops and transcribes if recording, otherwise starts a new
// recording if the orchestrator is idle. Ineligible calls are logged and
// dropped.
func (o *Orchestrator) Toggle(autoSubmit bool) {
	if o.StopAndTranscribe(autoSubmit) {
		return
	}

	o.mu.Lock()
	if o.state != StateIdle {
		st := o.state
		o.mu.Unlock()
		log.Info("cannot record while " + st.String())
		return
	}
	o.state = StateRecording
	o.session = &session{startedAt: time.Now()}
	o.mu.Unlock()

	if err := o.rec.Start(); err != nil {
		log.Errorf("recorder start: %v", err)
		o.mu.Lock()
		o.state = StateIdle
		o.session = nil
		o.mu.Unlock()
		return
	}
	log.Info("recording started")
	o.feedback.PlayStart()
	o.status.SetState(StateRecording)
}

// StopAndTranscribe ends the active recording and runs the transcription
// pipeline. It returns false without side effects when nothing is
// recording. Recording resources are released before processing begins.
func (o *Orchestrator) StopAndTranscribe(autoSubmit bool) bool {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return false
	}
	o.state = StateProcessing
	sess := o.session
	o.session = nil
	o.mu.Unlock()

	samples := o.rec.Stop()
	o.feedback.PlayStop()
	o.status.SetState(StateProcessing)

	o.runPipeline(sess, samples, autoSubmit)
	o.finishPipeline()
	return true
}

// Cancel discards the active recording without transcribing. Returns
// false unless currently recording. Never touches the network.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return false
	}
	o.state = StateIdle
	o.session = nil
	o.mu.Unlock()

	o.rec.Cancel()
	o.feedback.PlayCancel()
	o.status.SetState(StateIdle)
	log.Info("recording cancelled")
	return true
}

// RequestReconfigure asks for a model/beam/language change. Identical
// configurations are a no-op. While loading a model the request is
// rejected; while recording the recording is cancelled first; while
// processing the change is queued (last writer wins) and applied right
// after the in-flight pipeline completes.
func (o *Orchestrator) RequestReconfigure(cfg ModelConfig) bool {
	cfg = cfg.normalized()

	o.mu.Lock()
	if cfg == o.current {
		o.mu.Unlock()
		return true
	}
	switch o.state {
	case StateModelLoading:
		o.mu.Unlock()
		log.Info("model change rejected: still loading previous model")
		return false
	case StateProcessing:
		queued := cfg
		o.pending = &queued
		o.mu.Unlock()
		log.Info("model change queued until transcription completes")
		return true
	case StateRecording:
		o.state = StateIdle
		o.session = nil
		o.mu.Unlock()
		o.rec.Cancel()
		o.feedback.PlayCancel()
		log.Info("cancelled recording for model change")
	default: // idle
		o.mu.Unlock()
	}

	o.mu.Lock()
	if o.state != StateIdle {
		// Another command won the race; treat like a busy rejection.
		o.mu.Unlock()
		return false
	}
	o.state = StateModelLoading
	o.mu.Unlock()

	o.status.SetState(StateModelLoading)
	o.applyReconfigure(cfg)
	return true
}

// runPipeline does the blocking transcribe/deliver work with the lock
// released. Failures are logged and swallowed; the caller always completes
// the terminal transition.
func (o *Orchestrator) runPipeline(sess *session, samples []float32, autoSubmit bool) {
	if len(samples) == 0 {
		log.Info("no audio captured")
		return
	}
	duration := float64(len(samples)) / float64(o.sampleRate)
	log.Info(fmt.Sprintf("recorded %.1fs, transcribing", duration))

	text, err := o.asr.Transcribe(context.Background(), samples, o.sampleRate)
	if err != nil {
		log.Errorf("transcription failed: %v", err)
		return
	}
	if text == "" {
		log.Info("no speech detected")
		return
	}

	if err := o.delivery.Deliver(text, autoSubmit); err != nil {
		log.Errorf("delivery failed: %v", err)
		return
	}

	o.mu.Lock()
	o.lastText = text
	o.mu.Unlock()

	log.TranscriptionText(text)
	log.Transcription(duration, time.Since(sess.startedAt), len(text))
}

// finishPipeline commits the terminal transition out of Processing:
// straight back to idle, or through ModelLoading when a change was queued.
func (o *Orchestrator) finishPipeline() {
	o.mu.Lock()
	queued := o.pending
	o.pending = nil
	if queued != nil {
		o.state = StateModelLoading
	} else {
		o.state = StateIdle
	}
	o.mu.Unlock()

	if queued == nil {
		o.status.SetState(StateIdle)
		return
	}
	log.Info("applying queued model change: " + queued.Model)
	o.status.SetState(StateModelLoading)
	o.applyReconfigure(*queued)
}

// applyReconfigure runs with state == ModelLoading and the lock released.
// Success or failure, the orchestrator returns to idle.
func (o *Orchestrator) applyReconfigure(cfg ModelConfig) {
	if err := o.reconf.Apply(cfg); err != nil {
		log.Errorf("model change to %s failed: %v", cfg.Model, err)
	} else {
		o.mu.Lock()
		o.current = cfg
		o.mu.Unlock()
		log.Info("switched to model " + cfg.Model)
	}

	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
	o.status.SetState(StateIdle)
}
