package hotkey

import (
	"testing"
	"time"
)

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in   string
		want Combo
	}{
		{"ctrl+shift+space", Combo{Ctrl: true, Shift: true, Key: "space"}},
		{"Ctrl+Alt+R", Combo{Ctrl: true, Alt: true, Key: "r"}},
		{"super+1", Combo{Super: true, Key: "1"}},
		{"ctrl+shift+esc", Combo{Ctrl: true, Shift: true, Key: "escape"}},
		{"cmd+option+v", Combo{Super: true, Alt: true, Key: "v"}},
	}
	for _, tt := range tests {
		got, err := ParseCombo(tt.in)
		if err != nil {
			t.Errorf("ParseCombo(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCombo(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseComboRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "space", "ctrl+", "ctrl+foo+space", "ctrl+f13", "bogus+x"} {
		if _, err := ParseCombo(in); err == nil {
			t.Errorf("ParseCombo(%q) succeeded, want error", in)
		}
	}
}

func TestComboString(t *testing.T) {
	c := Combo{Ctrl: true, Shift: true, Key: "space"}
	if got := c.String(); got != "ctrl+shift+space" {
		t.Errorf("String() = %q", got)
	}
}

type actionLog struct {
	events chan string
}

func newActionLog() *actionLog {
	return &actionLog{events: make(chan string, 16)}
}

func (a *actionLog) actions() Actions {
	return Actions{
		Start:  func() { a.events <- "start" },
		Stop:   func() { a.events <- "stop" },
		Cancel: func() { a.events <- "cancel" },
	}
}

func (a *actionLog) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-a.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
		return ""
	}
}

func (a *actionLog) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-a.events:
		t.Fatalf("unexpected action %q", e)
	case <-time.After(30 * time.Millisecond):
	}
}

func newTestController(t *testing.T) (*Controller, *FakeHotkey, *FakeHotkey, *actionLog) {
	t.Helper()
	toggle := NewFake()
	cancel := NewFake()
	logged := newActionLog()
	c := NewController(toggle, cancel, logged.actions())
	c.holdThreshold = 50 * time.Millisecond
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c, toggle, cancel, logged
}

func TestControllerTapTogglesOnAndOff(t *testing.T) {
	_, toggle, _, logged := newTestController(t)

	toggle.SimKeydown()
	if got := logged.next(t); got != "start" {
		t.Fatalf("got %q, want start", got)
	}
	toggle.SimKeyup() // quick release: tap

	logged.none(t)

	toggle.SimKeydown()
	if got := logged.next(t); got != "stop" {
		t.Fatalf("got %q, want stop", got)
	}
}

func TestControllerHoldStopsOnRelease(t *testing.T) {
	c, toggle, _, logged := newTestController(t)

	toggle.SimKeydown()
	if got := logged.next(t); got != "start" {
		t.Fatalf("got %q, want start", got)
	}

	time.Sleep(3 * c.holdThreshold)
	toggle.SimKeyup()
	if got := logged.next(t); got != "stop" {
		t.Fatalf("got %q, want stop", got)
	}
}

func TestControllerCancelKeyDiscards(t *testing.T) {
	_, toggle, cancel, logged := newTestController(t)

	toggle.SimKeydown()
	if got := logged.next(t); got != "start" {
		t.Fatalf("got %q, want start", got)
	}
	toggle.SimKeyup()
	logged.none(t)

	cancel.SimKeydown()
	if got := logged.next(t); got != "cancel" {
		t.Fatalf("got %q, want cancel", got)
	}
}

func TestControllerCancelWhileIdleIgnored(t *testing.T) {
	_, _, cancel, logged := newTestController(t)

	cancel.SimKeydown()
	logged.none(t)
}

func TestControllerNilCancelKey(t *testing.T) {
	toggle := NewFake()
	logged := newActionLog()
	c := NewController(toggle, nil, logged.actions())
	c.holdThreshold = 50 * time.Millisecond
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	toggle.SimKeydown()
	if got := logged.next(t); got != "start" {
		t.Fatalf("got %q, want start", got)
	}
}
