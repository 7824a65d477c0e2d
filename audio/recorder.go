package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"whisperkey/log"
)

// RecorderConfig tunes a Recorder. Zero values get sane defaults; a zero
// MaxDuration disables the cap.
type RecorderConfig struct {
	SampleRate    int
	MaxDuration   time.Duration
	OnMaxDuration func()

	// Observer sees every raw PCM chunk, e.g. for voice activity
	// detection. Called on the capture thread.
	Observer func(data []byte, frameCount uint32)
}

// Recorder turns a capture device into discrete recording sessions. Start
// opens the device and begins buffering samples; Stop closes it and hands
// the buffer back; Cancel closes it and discards the buffer.
type Recorder struct {
	ctx        Context
	device     *DeviceInfo
	sampleRate int
	maxSamples int
	onMax      func()
	observer   func([]byte, uint32)

	mu      sync.Mutex
	capture CaptureDevice
	samples []float32
	active  bool
	capped  bool
}

func NewRecorder(ctx Context, device *DeviceInfo, cfg RecorderConfig) *Recorder {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	maxSamples := 0
	if cfg.MaxDuration > 0 {
		maxSamples = int(cfg.MaxDuration.Seconds() * float64(rate))
	}
	return &Recorder{
		ctx:        ctx,
		device:     device,
		sampleRate: rate,
		maxSamples: maxSamples,
		onMax:      cfg.OnMaxDuration,
		observer:   cfg.Observer,
	}
}

func (r *Recorder) SampleRate() int { return r.sampleRate }

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return fmt.Errorf("recorder already active")
	}
	r.mu.Unlock()

	capture, err := r.ctx.NewCapture(r.device, CaptureConfig{
		SampleRate: uint32(r.sampleRate),
		Channels:   1,
	})
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}

	r.mu.Lock()
	r.capture = capture
	r.samples = r.samples[:0]
	r.active = true
	r.capped = false
	r.mu.Unlock()

	capture.SetCallback(r.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		r.mu.Lock()
		r.capture = nil
		r.active = false
		r.mu.Unlock()
		return fmt.Errorf("starting capture: %w", err)
	}
	return nil
}

// Stop ends the session and returns the captured samples. The device is
// released before this returns. Returns nil when not recording.
func (r *Recorder) Stop() []float32 {
	capture, samples := r.teardown(true)
	if capture == nil {
		return nil
	}
	return samples
}

// Cancel ends the session and discards everything captured so far.
func (r *Recorder) Cancel() {
	r.teardown(false)
}

func (r *Recorder) teardown(keep bool) (CaptureDevice, []float32) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, nil
	}
	capture := r.capture
	r.capture = nil
	r.active = false
	var samples []float32
	if keep {
		samples = make([]float32, len(r.samples))
		copy(samples, r.samples)
	}
	r.samples = r.samples[:0]
	r.mu.Unlock()

	capture.ClearCallback()
	capture.Stop()
	capture.Close()
	return capture, samples
}

// onData runs on the capture device's thread. Frames are 16-bit LE mono.
func (r *Recorder) onData(data []byte, frameCount uint32) {
	n := int(frameCount)
	if n*2 > len(data) {
		n = len(data) / 2
	}

	if r.observer != nil {
		r.observer(data[:n*2], uint32(n))
	}

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		r.samples = append(r.samples, float32(s)/32768)
	}
	fireCap := false
	if r.maxSamples > 0 && len(r.samples) >= r.maxSamples && !r.capped {
		r.capped = true
		fireCap = true
	}
	r.mu.Unlock()

	if fireCap {
		log.Warn("max recording duration reached, stopping")
		if r.onMax != nil {
			// Not inline: the handler will call Stop, which waits for
			// the device and would deadlock the audio thread.
			go r.onMax()
		}
	}
}
