// Package hotkey registers global key combinations and turns raw
// press/release events into recording commands.
package hotkey

import (
	"fmt"
	"strings"
)

const (
	DefaultToggle = "ctrl+shift+space"
	DefaultCancel = "ctrl+shift+escape"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a parsed key combination: one or more modifiers plus one key.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
	Key   string
}

// ParseCombo parses strings like "ctrl+shift+space" or "ctrl+alt+r".
// Keys are single letters, digits, or one of space, enter, escape, tab.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt", "option":
			c.Alt = true
		case "super", "cmd", "win", "meta":
			c.Super = true
		default:
			if i != len(parts)-1 {
				return Combo{}, fmt.Errorf("unknown modifier %q in %q", p, s)
			}
			if p == "esc" {
				p = "escape"
			}
			if !validKey(p) {
				return Combo{}, fmt.Errorf("unknown key %q in %q", p, s)
			}
			c.Key = p
		}
	}
	if c.Key == "" {
		return Combo{}, fmt.Errorf("combo %q has no key", s)
	}
	if !c.Ctrl && !c.Shift && !c.Alt && !c.Super {
		return Combo{}, fmt.Errorf("combo %q needs at least one modifier", s)
	}
	return c, nil
}

func validKey(k string) bool {
	if len(k) == 1 {
		b := k[0]
		return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
	}
	switch k {
	case "space", "enter", "escape", "tab":
		return true
	}
	return false
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Super {
		parts = append(parts, "super")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
