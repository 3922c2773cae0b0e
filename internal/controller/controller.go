// Package controller owns the execution state machine. It serializes hotkey
// signals, drives the macro engine and releases held output whenever
// playback is suspended or ends.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"macrotoggle/internal/macro"
)

// State is the execution state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultQueueSize is the number of trigger edges that may wait for the
// controller before new ones are dropped.
const DefaultQueueSize = 16

// Output is the synthesizer the controller and engine share.
// *output.Synthesizer implements it.
type Output interface {
	macro.Output
	ReleaseAll() ([]uint16, error)
	Restore(codes []uint16) error
}

// Options configures a Controller.
type Options struct {
	Program macro.Program
	Engine  macro.Options

	// ExitOnComplete stops the controller after the program finishes
	// instead of returning to Idle.
	ExitOnComplete bool

	QueueSize int
	Logger    *slog.Logger
}

// TransitionFunc observes a state change. It runs on the controller
// goroutine and must not block.
type TransitionFunc func(from, to State)

// Controller is the single owner of the execution state.
type Controller struct {
	out  Output
	opts Options
	log  *slog.Logger

	triggers chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	fatal    chan error

	mu        sync.Mutex
	state     State
	observers []TransitionFunc

	// Owned by the Run goroutine.
	engine   *macro.Engine
	released []uint16
}

// New returns an Idle controller that plays opts.Program on out.
func New(out Output, opts Options) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Engine.Logger == nil {
		opts.Engine.Logger = log
	}
	return &Controller{
		out:      out,
		opts:     opts,
		log:      log,
		triggers: make(chan struct{}, opts.QueueSize),
		quit:     make(chan struct{}),
		fatal:    make(chan error, 1),
		state:    Idle,
	}
}

// OnTransition registers fn to be called on every state change. Register
// observers before calling Run.
func (c *Controller) OnTransition(fn TransitionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TriggerPressed queues a toggle. It never blocks; when the queue is full
// the edge is dropped.
func (c *Controller) TriggerPressed() {
	select {
	case c.triggers <- struct{}{}:
	default:
		c.log.Warn("trigger queue full, dropping hotkey press")
	}
}

// QuitPressed requests shutdown. It never blocks and is never dropped.
func (c *Controller) QuitPressed() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// Fail reports a fatal error from outside the controller, such as a failed
// device read. Only the first error is kept.
func (c *Controller) Fail(err error) {
	select {
	case c.fatal <- err:
	default:
		c.log.Debug("fatal error already pending", "error", err)
	}
}

// Run processes signals until quit, a fatal error, completion with
// ExitOnComplete, or the end of ctx. It returns nil on a clean stop and the
// fatal error otherwise. Held output is released in every case.
func (c *Controller) Run(ctx context.Context) error {
	for {
		// Quit wins over anything already queued.
		select {
		case <-c.quit:
			c.log.Info("quit requested")
			return c.shutdown(nil)
		default:
		}

		var done <-chan struct{}
		if c.engine != nil {
			done = c.engine.Done()
		}

		select {
		case <-ctx.Done():
			return c.shutdown(nil)

		case <-c.quit:
			c.log.Info("quit requested")
			return c.shutdown(nil)

		case err := <-c.fatal:
			return c.shutdown(err)

		case <-done:
			exit, err := c.finished()
			if err != nil {
				return c.shutdown(err)
			}
			if exit {
				return c.shutdown(nil)
			}

		case <-c.triggers:
			exit, err := c.toggle(ctx)
			if err != nil {
				return c.shutdown(err)
			}
			if exit {
				return c.shutdown(nil)
			}
		}
	}
}

// toggle applies one trigger edge.
func (c *Controller) toggle(ctx context.Context) (exit bool, err error) {
	switch c.State() {
	case Idle:
		c.engine = macro.NewEngine(c.opts.Program, c.out, c.opts.Engine)
		c.setState(Running)
		c.engine.Start(ctx)
		return false, nil

	case Running:
		if err := c.engine.Pause(); err != nil {
			if errors.Is(err, macro.ErrFinished) {
				return c.finished()
			}
			return false, err
		}
		released, err := c.out.ReleaseAll()
		c.released = released
		if err != nil {
			return false, fmt.Errorf("release on pause: %w", err)
		}
		c.log.Debug("paused", "cursor", c.engine.Cursor().Step, "released", released)
		c.setState(Paused)
		return false, nil

	case Paused:
		restore := c.released
		c.released = nil
		if err := c.out.Restore(restore); err != nil {
			return false, fmt.Errorf("restore on resume: %w", err)
		}
		if err := c.engine.Resume(); err != nil {
			if errors.Is(err, macro.ErrFinished) {
				return c.finished()
			}
			return false, err
		}
		c.setState(Running)
		return false, nil

	default:
		return false, nil
	}
}

// finished handles the end of the engine goroutine.
func (c *Controller) finished() (exit bool, err error) {
	eng := c.engine
	c.engine = nil
	c.released = nil

	if err := eng.Err(); err != nil {
		return false, err
	}

	if _, err := c.out.ReleaseAll(); err != nil {
		return false, fmt.Errorf("release on completion: %w", err)
	}
	if eng.Stopped() {
		// Only context cancellation stops the engine outside shutdown.
		return true, nil
	}

	c.log.Info("macro complete", "passes", eng.Passes())
	c.setState(Idle)
	return c.opts.ExitOnComplete, nil
}

// shutdown stops the engine, releases held output and enters Stopped.
func (c *Controller) shutdown(cause error) error {
	if cause != nil {
		c.log.Error("fatal error, stopping", "error", cause)
	}
	c.setState(Stopping)

	if c.engine != nil {
		// Stop only fails with ErrFinished, which needs no handling here.
		_ = c.engine.Stop()
		<-c.engine.Done()
		if err := c.engine.Err(); err != nil && cause == nil {
			cause = err
		}
		c.engine = nil
	}
	c.released = nil

	released, err := c.out.ReleaseAll()
	if len(released) > 0 {
		c.log.Info("released held outputs", "codes", released)
	}
	if err != nil {
		err = fmt.Errorf("release on stop: %w", err)
	}

	c.setState(Stopped)
	return errors.Join(cause, err)
}

func (c *Controller) setState(to State) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	observers := append([]TransitionFunc(nil), c.observers...)
	c.mu.Unlock()

	c.log.Info("state change", "from", from, "to", to)
	for _, fn := range observers {
		fn(from, to)
	}
}
