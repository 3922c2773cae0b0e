package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
	"macrotoggle/internal/macro"
	"macrotoggle/internal/output"
)

type edge struct {
	Code  uint16
	Value int32
}

func down(code uint16) edge { return edge{code, device.ValueDown} }
func up(code uint16) edge   { return edge{code, device.ValueUp} }

type keySink struct {
	mu     sync.Mutex
	edges   []edge
	failOn  func(edge) bool
	panicOn func(edge) bool
}

func (k *keySink) Write(typ, code uint16, value int32) error {
	if typ != device.EvKey {
		return nil
	}
	e := edge{code, value}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failOn != nil && k.failOn(e) {
		return errors.New("sink write failed")
	}
	if k.panicOn != nil && k.panicOn(e) {
		panic("sink exploded")
	}
	k.edges = append(k.edges, e)
	return nil
}

func (k *keySink) Sync() error { return nil }

func (k *keySink) got() []edge {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]edge(nil), k.edges...)
}

type harness struct {
	t     *testing.T
	c     *Controller
	sink  *keySink
	errc  chan error
	mu    sync.Mutex
	trans [][2]State
}

func start(t *testing.T, prog macro.Program, tweak func(*Options)) *harness {
	t.Helper()
	sink := &keySink{}
	out := output.New(sink, output.Options{})
	opts := Options{
		Program: prog,
		Engine:  macro.Options{PollQuantum: 5 * time.Millisecond},
	}
	if tweak != nil {
		tweak(&opts)
	}

	h := &harness{t: t, c: New(out, opts), sink: sink, errc: make(chan error, 1)}
	h.c.OnTransition(func(from, to State) {
		h.mu.Lock()
		h.trans = append(h.trans, [2]State{from, to})
		h.mu.Unlock()
	})
	go func() { h.errc <- h.c.Run(context.Background()) }()
	return h
}

func (h *harness) transitions() [][2]State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][2]State(nil), h.trans...)
}

func (h *harness) waitState(s State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.c.State() == s }, 5*time.Second, time.Millisecond,
		"never reached %s", s)
}

func (h *harness) waitEdges(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.sink.got()) >= n }, 5*time.Second, time.Millisecond,
		"expected %d edges, have %v", n, h.sink.got())
}

func (h *harness) result() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func holdW() macro.Program {
	return macro.Program{Loop: true, Steps: []macro.Step{
		macro.Key{Token: keycode.MustParse("w"), Action: macro.Press},
		macro.Wait{Duration: 99999 * time.Second},
	}}
}

func TestToggleReleasesAndRestores(t *testing.T) {
	h := start(t, holdW(), nil)
	w := keycode.KeyW

	h.c.TriggerPressed()
	h.waitEdges(1)
	assert.Equal(t, Running, h.c.State())

	h.c.TriggerPressed()
	h.waitState(Paused)
	assert.Equal(t, []edge{down(w), up(w)}, h.sink.got())

	h.c.TriggerPressed()
	h.waitState(Running)
	h.waitEdges(3)
	assert.Equal(t, []edge{down(w), up(w), down(w)}, h.sink.got())

	h.c.QuitPressed()
	require.NoError(t, h.result())

	assert.Equal(t, Stopped, h.c.State())
	assert.Equal(t, []edge{down(w), up(w), down(w), up(w)}, h.sink.got())
	assert.Equal(t, [][2]State{
		{Idle, Running},
		{Running, Paused},
		{Paused, Running},
		{Running, Stopping},
		{Stopping, Stopped},
	}, h.transitions())
}

func TestQuitWhilePaused(t *testing.T) {
	h := start(t, holdW(), nil)
	w := keycode.KeyW

	h.c.TriggerPressed()
	h.waitEdges(1)
	h.c.TriggerPressed()
	h.waitState(Paused)

	h.c.QuitPressed()
	require.NoError(t, h.result())

	// The pause already released w; quitting must not release it twice.
	assert.Equal(t, []edge{down(w), up(w)}, h.sink.got())
	assert.Equal(t, Stopped, h.c.State())
}

func TestQuitFromIdle(t *testing.T) {
	h := start(t, holdW(), nil)

	h.c.QuitPressed()
	h.c.QuitPressed()
	require.NoError(t, h.result())

	assert.Empty(t, h.sink.got())
	assert.Equal(t, [][2]State{{Idle, Stopping}, {Stopping, Stopped}}, h.transitions())
}

func TestCompletionReturnsToIdleAndRestartsFromTop(t *testing.T) {
	prog := macro.Program{Steps: []macro.Step{
		macro.Key{Token: keycode.MustParse("a")},
		macro.Key{Token: keycode.MustParse("b")},
	}}
	h := start(t, prog, nil)
	a, b := keycode.KeyA, keycode.KeyB

	h.c.TriggerPressed()
	h.waitEdges(4)
	require.Eventually(t, func() bool {
		tr := h.transitions()
		return len(tr) == 2 && tr[1] == [2]State{Running, Idle}
	}, 5*time.Second, time.Millisecond)

	h.c.TriggerPressed()
	h.waitEdges(8)
	h.waitState(Idle)

	h.c.QuitPressed()
	require.NoError(t, h.result())

	assert.Equal(t, []edge{
		down(a), up(a), down(b), up(b),
		down(a), up(a), down(b), up(b),
	}, h.sink.got())
}

func TestExitOnComplete(t *testing.T) {
	prog := macro.Program{Steps: []macro.Step{macro.Key{Token: keycode.MustParse("a")}}}
	h := start(t, prog, func(o *Options) { o.ExitOnComplete = true })

	h.c.TriggerPressed()
	require.NoError(t, h.result())

	assert.Equal(t, Stopped, h.c.State())
	assert.Equal(t, [][2]State{
		{Idle, Running},
		{Running, Idle},
		{Idle, Stopping},
		{Stopping, Stopped},
	}, h.transitions())
}

func TestSinkFailureIsFatal(t *testing.T) {
	prog := macro.Program{Loop: true, Steps: []macro.Step{
		macro.Key{Token: keycode.MustParse("<shift>"), Action: macro.Press},
		macro.Key{Token: keycode.MustParse("x")},
	}}
	h := start(t, prog, nil)
	h.sink.failOn = func(e edge) bool { return e == down(keycode.KeyX) }

	h.c.TriggerPressed()
	err := h.result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink write failed")

	// Shift was held when the step failed and is released on the way out.
	assert.Equal(t, []edge{down(keycode.KeyLeftShift), up(keycode.KeyLeftShift)}, h.sink.got())
	assert.Equal(t, Stopped, h.c.State())
}

func TestStepPanicIsFatal(t *testing.T) {
	prog := macro.Program{Loop: true, Steps: []macro.Step{
		macro.Key{Token: keycode.MustParse("<shift>"), Action: macro.Press},
		macro.Key{Token: keycode.MustParse("x")},
	}}
	h := start(t, prog, nil)
	h.sink.panicOn = func(e edge) bool { return e == down(keycode.KeyX) }

	h.c.TriggerPressed()
	err := h.result()
	require.ErrorIs(t, err, macro.ErrPanic)

	assert.Equal(t, []edge{down(keycode.KeyLeftShift), up(keycode.KeyLeftShift)}, h.sink.got())
	assert.Equal(t, Stopped, h.c.State())
}

func TestFailReleasesHeldOutput(t *testing.T) {
	h := start(t, holdW(), nil)

	h.c.TriggerPressed()
	h.waitEdges(1)

	boom := errors.New("keyboard unplugged")
	h.c.Fail(boom)
	h.c.Fail(errors.New("second error"))

	err := h.result()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []edge{down(keycode.KeyW), up(keycode.KeyW)}, h.sink.got())
}

func TestContextCancelStops(t *testing.T) {
	sink := &keySink{}
	c := New(output.New(sink, output.Options{}), Options{
		Program: holdW(),
		Engine:  macro.Options{PollQuantum: 5 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	c.TriggerPressed()
	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []edge{down(keycode.KeyW), up(keycode.KeyW)}, sink.got())
}

func TestTriggerNeverBlocks(t *testing.T) {
	c := New(output.New(&keySink{}, output.Options{}), Options{Program: holdW(), QueueSize: 2})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.TriggerPressed()
		}
		c.QuitPressed()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TriggerPressed blocked without a running controller")
	}
	assert.Len(t, c.triggers, 2)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
