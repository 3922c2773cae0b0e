// Package notify shows desktop notifications when the macro changes state.
package notify

import (
	"log/slog"
	"sync"

	"macrotoggle/internal/controller"
)

// Notifier displays a notification.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
func (Nop) Close() error                { return nil }

// Message returns the notification text for a transition. ok is false for
// transitions that are not announced.
func Message(from, to controller.State) (summary, body string, ok bool) {
	switch to {
	case controller.Running:
		if from == controller.Paused {
			return "Macro resumed", "Held inputs restored", true
		}
		return "Macro started", "Press the trigger hotkey again to pause", true
	case controller.Paused:
		return "Macro paused", "All held inputs released", true
	case controller.Idle:
		return "Macro finished", "Press the trigger hotkey to run it again", true
	case controller.Stopped:
		return "macrotoggle stopped", "", true
	}
	return "", "", false
}

const queueSize = 8

type message struct {
	summary, body string
}

// Dispatcher delivers transition notifications off the controller goroutine.
// Messages are dropped when the queue is full.
type Dispatcher struct {
	n   Notifier
	log *slog.Logger

	mu     sync.Mutex
	closed bool
	msgs   chan message
	done   chan struct{}
}

// NewDispatcher starts a dispatcher that sends to n.
func NewDispatcher(n Notifier, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		n:    n,
		log:  log,
		msgs: make(chan message, queueSize),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for m := range d.msgs {
		if err := d.n.Notify(m.summary, m.body); err != nil {
			d.log.Warn("notification failed", "summary", m.summary, "error", err)
		}
	}
}

// Observe is a controller.TransitionFunc.
func (d *Dispatcher) Observe(from, to controller.State) {
	summary, body, ok := Message(from, to)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.msgs <- message{summary, body}:
	default:
		d.log.Warn("notification dropped", "summary", summary)
	}
}

// Close delivers queued notifications, then closes the notifier.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.msgs)
	}
	d.mu.Unlock()

	<-d.done
	return d.n.Close()
}
