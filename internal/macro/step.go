// Package macro defines macro programs and the engine that plays them.
//
// A program is a linear list of steps, optionally looping. The engine plays
// it in its own goroutine and can be paused, resumed and stopped at safe
// points: between steps and, inside a wait, once per polling quantum.
package macro

import (
	"fmt"
	"strings"
	"time"

	"macrotoggle/internal/keycode"
)

// Action is the edge behaviour of a key or button step.
type Action int

const (
	// Tap presses and releases.
	Tap Action = iota
	// Press only presses; the key stays held until a Release step.
	Press
	// Release only releases.
	Release
)

func (a Action) String() string {
	switch a {
	case Tap:
		return "tap"
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction parses "tap", "press" or "release". An empty string is Tap.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tap":
		return Tap, nil
	case "press":
		return Press, nil
	case "release":
		return Release, nil
	default:
		return 0, fmt.Errorf("unknown action %q (want tap, press or release)", s)
	}
}

// Step is one macro instruction. The set of implementations is closed.
type Step interface {
	Kind() string
	step()
}

// Wait pauses playback for Duration. Time spent paused does not count.
type Wait struct {
	Duration time.Duration
}

// Key taps, presses or releases one key.
type Key struct {
	Token  keycode.Token
	Action Action
}

// Combo presses every token in order and releases them in reverse.
type Combo struct {
	Tokens []keycode.Token
}

// MouseClick clicks a button Count times.
type MouseClick struct {
	Button keycode.Button
	Count  int
}

// MouseButton taps, presses or releases a mouse button.
type MouseButton struct {
	Button keycode.Button
	Action Action
}

// MouseMove moves the pointer relatively.
type MouseMove struct {
	DX, DY int32
}

// MouseScroll turns the wheels: DY vertical, DX horizontal.
type MouseScroll struct {
	DX, DY int32
}

func (Wait) Kind() string        { return "wait" }
func (Key) Kind() string         { return "key" }
func (Combo) Kind() string       { return "combo" }
func (MouseClick) Kind() string  { return "mouse_click" }
func (MouseButton) Kind() string { return "mouse_button" }
func (MouseMove) Kind() string   { return "mouse_move" }
func (MouseScroll) Kind() string { return "mouse_scroll" }

func (Wait) step()        {}
func (Key) step()         {}
func (Combo) step()       {}
func (MouseClick) step()  {}
func (MouseButton) step() {}
func (MouseMove) step()   {}
func (MouseScroll) step() {}

// Describe renders a step for logs and the check command.
func Describe(s Step) string {
	switch s := s.(type) {
	case Wait:
		return fmt.Sprintf("wait %s", s.Duration)
	case Key:
		return fmt.Sprintf("key %s %s", s.Action, s.Token)
	case Combo:
		parts := make([]string, len(s.Tokens))
		for i, tok := range s.Tokens {
			parts[i] = tok.String()
		}
		return "combo " + strings.Join(parts, "+")
	case MouseClick:
		return fmt.Sprintf("mouse_click %s x%d", s.Button, s.Count)
	case MouseButton:
		return fmt.Sprintf("mouse_button %s %s", s.Action, s.Button)
	case MouseMove:
		return fmt.Sprintf("mouse_move %+d,%+d", s.DX, s.DY)
	case MouseScroll:
		return fmt.Sprintf("mouse_scroll %+d,%+d", s.DX, s.DY)
	default:
		return fmt.Sprintf("unknown step %T", s)
	}
}

// Program is an immutable macro.
type Program struct {
	Steps []Step
	Loop  bool
}

// Cursor is the engine's resumable position.
type Cursor struct {
	Step        int
	WaitElapsed time.Duration
}
