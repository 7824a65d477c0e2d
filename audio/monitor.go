package audio

import (
	"sync"
	"time"
)

// VoiceMonitor watches a recording for speech and raises silence events:
// a warning after sustained silence and, when enabled, an auto-stop after
// half a minute with no voice. Feed it PCM via Process (wire it up as the
// Recorder's Observer) and bracket each recording with Start/Stop.
type VoiceMonitor struct {
	vad     *vadProcessor
	onEvent func(SilenceEvent)
	autoStop func() bool

	mu   sync.Mutex
	stop chan struct{}
}

// NewVoiceMonitor fails when the VAD engine cannot initialize; callers
// should treat that as a soft error and record without monitoring.
func NewVoiceMonitor(autoStop func() bool, onEvent func(SilenceEvent)) (*VoiceMonitor, error) {
	vad, err := newVADProcessor()
	if err != nil {
		return nil, err
	}
	return &VoiceMonitor{vad: vad, onEvent: onEvent, autoStop: autoStop}, nil
}

// Process accepts raw 16-bit LE mono PCM from the capture callback.
func (m *VoiceMonitor) Process(data []byte, _ uint32) {
	m.vad.Process(data)
}

// VoiceDetected reports whether any speech has been confirmed since Start.
func (m *VoiceMonitor) VoiceDetected() bool {
	return m.vad.VoiceDetected()
}

func (m *VoiceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.vad.Reset()
	mon := newSilenceMonitor(m.autoStop)
	stop := make(chan struct{})
	m.stop = stop

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ev := mon.Tick(m.vad.HasSpeechTick())
				if ev != SilenceNone && m.onEvent != nil {
					m.onEvent(ev)
				}
				if ev == SilenceAutoStop {
					return
				}
			}
		}
	}()
}

func (m *VoiceMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}
