package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultPollQuantum bounds how long a wait runs before re-checking for
// pause and stop requests.
const DefaultPollQuantum = 50 * time.Millisecond

// ErrFinished is returned by Pause, Resume and Stop once the engine has
// exited.
var ErrFinished = errors.New("macro engine finished")

// ErrPanic wraps a panic raised while playing a step.
var ErrPanic = errors.New("macro step panicked")

// Output is what the engine drives. *output.Synthesizer implements it.
type Output interface {
	Tap(code uint16) error
	Press(code uint16) error
	Release(code uint16) error
	Combo(codes []uint16) error
	Click(button uint16, count int) error
	Move(dx, dy int32) error
	Scroll(dx, dy int32) error
}

// Options configures an Engine.
type Options struct {
	PollQuantum time.Duration
	Logger      *slog.Logger
}

type signalKind int

const (
	sigPause signalKind = iota
	sigResume
	sigStop
)

type signal struct {
	kind signalKind
	ack  chan struct{}
}

// Engine plays one Program. An Engine is single use: Start it once, then
// drive it with Pause, Resume and Stop until Done is closed.
type Engine struct {
	prog    Program
	out     Output
	quantum time.Duration
	log     *slog.Logger

	signals chan signal
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	cursor  Cursor
	passes  int
	paused  bool
	stopped bool
	err     error
}

// NewEngine returns an engine for prog writing to out. Its cursor starts at
// (0, 0).
func NewEngine(prog Program, out Output, opts Options) *Engine {
	quantum := opts.PollQuantum
	if quantum <= 0 {
		quantum = DefaultPollQuantum
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		prog:    prog,
		out:     out,
		quantum: quantum,
		log:     log,
		signals: make(chan signal),
		done:    make(chan struct{}),
	}
}

// Start launches playback. Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.once.Do(func() {
		go e.run(ctx)
	})
}

// Pause asks the engine to suspend at its next safe point and blocks until
// it has. Once Pause returns nil the engine writes nothing until resumed.
func (e *Engine) Pause() error { return e.send(sigPause) }

// Resume continues a paused engine from its cursor.
func (e *Engine) Resume() error { return e.send(sigResume) }

// Stop aborts playback and blocks until the engine has acknowledged. The
// engine writes nothing after Stop returns.
func (e *Engine) Stop() error { return e.send(sigStop) }

// Done is closed when the engine goroutine has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the step error that ended playback, if any. Valid after Done.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Stopped reports whether playback ended because of Stop or context
// cancellation rather than completing.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Paused reports whether the engine is suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Cursor returns the current position.
func (e *Engine) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Passes returns how many times a looping program has wrapped around.
func (e *Engine) Passes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passes
}

func (e *Engine) send(kind signalKind) error {
	sig := signal{kind: kind, ack: make(chan struct{})}
	select {
	case e.signals <- sig:
	case <-e.done:
		return ErrFinished
	}
	<-sig.ack
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	err := e.playRecovered(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case errors.Is(err, errStopped):
		e.stopped = true
	case err != nil:
		e.err = err
	}
}

var errStopped = errors.New("stopped")

func (e *Engine) playRecovered(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic during playback", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return e.play(ctx)
}

func (e *Engine) play(ctx context.Context) error {
	steps := e.prog.Steps
	if len(steps) == 0 {
		return nil
	}

	for {
		if !e.checkpoint(ctx) {
			return errStopped
		}

		c := e.Cursor()
		if c.Step >= len(steps) {
			if !e.prog.Loop {
				e.log.Debug("macro complete")
				return nil
			}
			e.mu.Lock()
			e.cursor = Cursor{}
			e.passes++
			e.mu.Unlock()
			continue
		}

		step := steps[c.Step]
		if w, ok := step.(Wait); ok {
			if !e.wait(ctx, w.Duration) {
				return errStopped
			}
		} else if err := e.exec(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", c.Step, step.Kind(), err)
		}

		e.mu.Lock()
		e.cursor = Cursor{Step: c.Step + 1}
		e.mu.Unlock()
	}
}

func (e *Engine) exec(step Step) error {
	e.log.Debug("step", "cursor", e.Cursor().Step, "action", Describe(step))

	switch s := step.(type) {
	case Key:
		return e.edge(s.Token.Code, s.Action)
	case Combo:
		codes := make([]uint16, len(s.Tokens))
		for i, tok := range s.Tokens {
			codes[i] = tok.Code
		}
		return e.out.Combo(codes)
	case MouseClick:
		return e.out.Click(s.Button.Code, s.Count)
	case MouseButton:
		return e.edge(s.Button.Code, s.Action)
	case MouseMove:
		return e.out.Move(s.DX, s.DY)
	case MouseScroll:
		return e.out.Scroll(s.DX, s.DY)
	default:
		return fmt.Errorf("unsupported step %T", step)
	}
}

func (e *Engine) edge(code uint16, action Action) error {
	switch action {
	case Press:
		return e.out.Press(code)
	case Release:
		return e.out.Release(code)
	default:
		return e.out.Tap(code)
	}
}

// wait runs a Wait step from the cursor's elapsed time. It returns false
// when the engine must stop.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	for {
		remaining := d - e.Cursor().WaitElapsed
		if remaining <= 0 {
			return true
		}

		start := time.Now()
		timer := time.NewTimer(min(e.quantum, remaining))

		select {
		case <-ctx.Done():
			timer.Stop()
			e.addElapsed(time.Since(start))
			return false

		case sig := <-e.signals:
			timer.Stop()
			e.addElapsed(time.Since(start))
			if !e.handle(ctx, sig) {
				return false
			}

		case <-timer.C:
			e.addElapsed(time.Since(start))
		}
	}
}

func (e *Engine) addElapsed(d time.Duration) {
	e.mu.Lock()
	e.cursor.WaitElapsed += d
	e.mu.Unlock()
}

// checkpoint handles a pending signal without blocking. It returns false
// when the engine must stop.
func (e *Engine) checkpoint(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case sig := <-e.signals:
		return e.handle(ctx, sig)
	default:
		return true
	}
}

func (e *Engine) handle(ctx context.Context, sig signal) bool {
	switch sig.kind {
	case sigPause:
		e.setPaused(true)
		close(sig.ack)
		return e.suspend(ctx)
	case sigStop:
		close(sig.ack)
		return false
	default:
		close(sig.ack)
		return true
	}
}

// suspend blocks while paused.
func (e *Engine) suspend(ctx context.Context) bool {
	e.log.Debug("suspended", "cursor", e.Cursor().Step, "wait_elapsed", e.Cursor().WaitElapsed)
	defer e.setPaused(false)

	for {
		select {
		case <-ctx.Done():
			return false
		case sig := <-e.signals:
			switch sig.kind {
			case sigResume:
				close(sig.ack)
				return true
			case sigStop:
				close(sig.ack)
				return false
			default:
				close(sig.ack)
			}
		}
	}
}

func (e *Engine) setPaused(p bool) {
	e.mu.Lock()
	e.paused = p
	e.mu.Unlock()
}
