package audio

import "time"

const (
	tickInterval       = 100 * time.Millisecond
	silenceWarnEvery   = 8 * time.Second
	silenceAutoStopDur = 30 * time.Second
	speechMinRatio     = 0.10
	speechClearRatio   = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // repeat reminder (every 8s)
	SilenceAutoStop               // prolonged silence, recording should end
)

// silenceMonitor turns per-tick speech booleans into warning and
// auto-stop events. Auto-stop is gated by the autoStop callback so a
// hold-to-talk recording never ends under the user's finger.
type silenceMonitor struct {
	warnWindow int
	stopWindow int
	autoStop   func() bool

	ticks       int
	speech      []bool
	speechTotal int
	warning     bool
	lastRemind  int
}

func newSilenceMonitor(autoStop func() bool) *silenceMonitor {
	stopWindow := int(silenceAutoStopDur / tickInterval)
	return &silenceMonitor{
		warnWindow: int(silenceWarnEvery / tickInterval),
		stopWindow: stopWindow,
		autoStop:   autoStop,
		speech:     make([]bool, stopWindow),
	}
}

// record pushes one tick into the ring and keeps the running total over
// the full stop window.
func (m *silenceMonitor) record(hasSpeech bool) {
	idx := m.ticks % m.stopWindow
	if m.ticks >= m.stopWindow && m.speech[idx] {
		m.speechTotal--
	}
	m.speech[idx] = hasSpeech
	if hasSpeech {
		m.speechTotal++
	}
	m.ticks++
}

// recentRatio returns the speech share of the last n ticks, or 1.0 while
// there is not yet any history.
func (m *silenceMonitor) recentRatio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.speech[(m.ticks-1-i+m.stopWindow)%m.stopWindow] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.record(hasSpeech)

	recent := m.recentRatio(m.warnWindow)

	if m.ticks >= m.warnWindow && recent < speechMinRatio && !m.warning {
		m.warning = true
		m.lastRemind = m.ticks
		return SilenceWarn
	}
	if m.warning && recent >= speechClearRatio {
		m.warning = false
		return SilenceWarnClear
	}

	if m.autoStop == nil || !m.autoStop() {
		return SilenceNone
	}

	// Auto-stop wins over the repeat reminder when both are due.
	if m.ticks >= m.stopWindow && float64(m.speechTotal)/float64(m.stopWindow) < speechMinRatio {
		return SilenceAutoStop
	}

	if m.warning && m.ticks-m.lastRemind >= m.warnWindow {
		m.lastRemind = m.ticks
		return SilenceRepeat
	}

	return SilenceNone
}
