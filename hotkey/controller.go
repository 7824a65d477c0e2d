package hotkey

import "time"

// How long the toggle key must stay down before a press counts as
// hold-to-talk rather than a tap.
const DefaultHoldThreshold = 400 * time.Millisecond

// Actions are what the controller drives on the recording side. All three
// must be non-nil.
type Actions struct {
	Start  func()
	Stop   func()
	Cancel func()
}

// Controller translates hotkey events into recording commands. A tap of
// the toggle key starts recording and a second tap stops it; holding the
// key records for as long as it is down. The cancel key discards an
// active recording.
type Controller struct {
	toggle        Hotkey
	cancel        Hotkey // may be nil
	holdThreshold time.Duration
	actions       Actions
	quit          chan struct{}
}

func NewController(toggle, cancel Hotkey, actions Actions) *Controller {
	return &Controller{
		toggle:        toggle,
		cancel:        cancel,
		holdThreshold: DefaultHoldThreshold,
		actions:       actions,
		quit:          make(chan struct{}),
	}
}

// Run registers the hotkeys and processes events until Close. It returns
// immediately on registration failure.
func (c *Controller) Run() error {
	if err := c.toggle.Register(); err != nil {
		return err
	}
	if c.cancel != nil {
		if err := c.cancel.Register(); err != nil {
			c.toggle.Unregister()
			return err
		}
	}
	go c.loop()
	return nil
}

func (c *Controller) Close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	c.toggle.Unregister()
	if c.cancel != nil {
		c.cancel.Unregister()
	}
}

func (c *Controller) cancelDown() <-chan struct{} {
	if c.cancel == nil {
		return nil
	}
	return c.cancel.Keydown()
}

func (c *Controller) loop() {
	for {
		// Idle: wait for the toggle key.
		select {
		case <-c.quit:
			return
		case <-c.cancelDown():
			continue
		case <-c.toggle.Keydown():
		}

		c.actions.Start()

		// Decide tap vs hold by how long the key stays down.
		timer := time.NewTimer(c.holdThreshold)
		select {
		case <-c.quit:
			timer.Stop()
			return
		case <-c.cancelDown():
			timer.Stop()
			c.actions.Cancel()
			c.drainKeyup()
			continue
		case <-timer.C:
			// Hold-to-talk: stop on release.
			select {
			case <-c.quit:
				return
			case <-c.cancelDown():
				c.actions.Cancel()
				c.drainKeyup()
			case <-c.toggle.Keyup():
				c.actions.Stop()
			}
			continue
		case <-c.toggle.Keyup():
			timer.Stop()
		}

		// Tapped: recording stays on until the next press or cancel.
		select {
		case <-c.quit:
			return
		case <-c.cancelDown():
			c.actions.Cancel()
		case <-c.toggle.Keydown():
			c.actions.Stop()
			c.drainKeyup()
		}
	}
}

// drainKeyup eats a buffered release so it does not leak into the next
// idle round.
func (c *Controller) drainKeyup() {
	select {
	case <-c.toggle.Keyup():
	default:
	}
}
