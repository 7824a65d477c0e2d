// Package delivery places transcribed text into the focused application:
// copy to clipboard, synthesize the paste chord, optionally press Enter,
// then restore whatever the clipboard held before.
package delivery

import (
	"fmt"
	"time"

	"whisperkey/log"
)

// Clipboard abstracts the system clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Keystroker synthesizes keyboard input.
type Keystroker interface {
	Paste() error
	Enter() error
}

const (
	// Time for the focused app to consume the paste before the
	// clipboard is restored.
	defaultRestoreDelay = 500 * time.Millisecond

	// Gap between paste and Enter so they land as separate events.
	submitDelay = 50 * time.Millisecond
)

type Deliverer struct {
	clip         Clipboard
	keys         Keystroker
	restore      bool
	restoreDelay time.Duration
	sleep        func(time.Duration)
}

// Options for NewDeliverer. RestoreClipboard puts the previous clipboard
// contents back after the paste settles.
type Options struct {
	RestoreClipboard bool
	RestoreDelay     time.Duration
}

func NewDeliverer(clip Clipboard, keys Keystroker, opts Options) *Deliverer {
	delay := opts.RestoreDelay
	if delay <= 0 {
		delay = defaultRestoreDelay
	}
	return &Deliverer{
		clip:         clip,
		keys:         keys,
		restore:      opts.RestoreClipboard,
		restoreDelay: delay,
		sleep:        time.Sleep,
	}
}

// New returns a Deliverer backed by the real system clipboard and
// keyboard.
func New(opts Options) *Deliverer {
	return NewDeliverer(systemClipboard{}, newSystemKeys(), opts)
}

func (d *Deliverer) Deliver(text string, autoSubmit bool) error {
	var previous string
	var hadPrevious bool
	if d.restore {
		if prev, err := d.clip.Read(); err == nil {
			previous = prev
			hadPrevious = true
		} else {
			log.Warnf("could not read clipboard for restore: %v", err)
		}
	}

	if err := d.clip.Write(text); err != nil {
		return fmt.Errorf("copying transcript: %w", err)
	}
	if err := d.keys.Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if autoSubmit {
		d.sleep(submitDelay)
		if err := d.keys.Enter(); err != nil {
			return fmt.Errorf("enter keystroke: %w", err)
		}
	}

	if hadPrevious {
		d.sleep(d.restoreDelay)
		if err := d.clip.Write(previous); err != nil {
			log.Warnf("could not restore clipboard: %v", err)
		}
	}
	return nil
}
