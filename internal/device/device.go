// Package device provides access to Linux input devices: reading raw key
// events from a physical keyboard (/dev/input/event*) and emitting synthetic
// events through a uinput virtual device.
//
// Platform support:
//   - Linux: evdev for reading, uinput for writing (requires the input group
//     or root, and write access to /dev/uinput)
//   - Other platforms: every constructor returns ErrUnsupported
package device

import (
	"errors"
	"fmt"
	"time"
)

// Event types (EV_*).
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02
)

// SynReport terminates a batch of events.
const SynReport uint16 = 0

// Relative axes (REL_*).
const (
	RelX      uint16 = 0x00
	RelY      uint16 = 0x01
	RelHWheel uint16 = 0x06
	RelWheel  uint16 = 0x08
)

// EV_KEY values.
const (
	ValueUp     int32 = 0
	ValueDown   int32 = 1
	ValueRepeat int32 = 2
)

// InputEvent is one decoded struct input_event.
type InputEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// ErrUnsupported is returned on platforms without evdev/uinput.
var ErrUnsupported = errors.New("input devices are only supported on linux")

// ErrNotFound is returned when no keyboard device can be located.
var ErrNotFound = errors.New("keyboard device not found")

// Error records a failed device operation and the path it was performed on.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("device %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// VirtualOptions configures the uinput device.
type VirtualOptions struct {
	// Name is the device name reported to the kernel.
	Name string

	// Keys are the EV_KEY codes (keys and buttons) the device may emit.
	Keys []uint16
}

// DefaultVirtualName is used when VirtualOptions.Name is empty.
const DefaultVirtualName = "macrotoggle-virtual"
