// Package monitor tracks physically held keys and turns hotkey presses into
// controller signals.
package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
)

// Source yields normalized input events. *device.Keyboard implements it.
type Source interface {
	ReadEvent() (device.InputEvent, error)
	Close() error
}

// Handler receives hotkey signals. Both methods must not block.
type Handler interface {
	TriggerPressed()
	QuitPressed()
}

// Options configures a Monitor.
type Options struct {
	Trigger keycode.Spec
	Quit    keycode.Spec
	Logger  *slog.Logger
}

type hotkey struct {
	spec  keycode.Spec
	armed bool
	fire  func()
}

// eval fires once on the transition into satisfied and re-arms when the
// spec is released.
func (h *hotkey) eval(held keycode.Held) {
	if h.spec.IsZero() {
		return
	}
	satisfied := h.spec.Matches(held)
	if satisfied && h.armed {
		h.fire()
	}
	h.armed = !satisfied
}

// Monitor reads key events and keeps the set of held physical keys.
type Monitor struct {
	src  Source
	log  *slog.Logger
	held keycode.CodeSet

	quit    hotkey
	trigger hotkey
}

// New returns a monitor reading from src and signalling h.
func New(src Source, h Handler, opts Options) *Monitor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		src:     src,
		log:     log,
		held:    keycode.NewCodeSet(),
		quit:    hotkey{spec: opts.Quit, armed: true, fire: h.QuitPressed},
		trigger: hotkey{spec: opts.Trigger, armed: true, fire: h.TriggerPressed},
	}
}

// Run reads events until ctx ends or the source fails. The source is closed
// when ctx ends so a blocked read returns. A read error after cancellation
// is not reported.
func (m *Monitor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		if err := m.src.Close(); err != nil {
			m.log.Warn("close input source", "error", err)
		}
	})
	defer stop()

	for {
		ev, err := m.src.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		m.Handle(ev)
	}
}

// Handle applies one event to the held set and evaluates the hotkeys. The
// quit hotkey is evaluated before the trigger.
func (m *Monitor) Handle(ev device.InputEvent) {
	if ev.Type != device.EvKey {
		return
	}

	switch ev.Value {
	case device.ValueDown:
		m.held.Add(ev.Code)
	case device.ValueUp:
		m.held.Remove(ev.Code)
	case device.ValueRepeat:
		m.log.Debug("key repeat", "code", ev.Code)
		return
	default:
		return
	}

	m.quit.eval(m.held)
	m.trigger.eval(m.held)
}

// Held returns the held physical key codes in ascending order.
func (m *Monitor) Held() []uint16 {
	return m.held.Sorted()
}
