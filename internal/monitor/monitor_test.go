package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
)

type recorder struct {
	mu      sync.Mutex
	signals []string
}

func (r *recorder) TriggerPressed() { r.add("trigger") }
func (r *recorder) QuitPressed()    { r.add("quit") }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.signals...)
}

// chanSource replays events from a channel until closed.
type chanSource struct {
	events chan device.InputEvent
	closed chan struct{}
	once   sync.Once
	err    error
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan device.InputEvent), closed: make(chan struct{})}
}

func (c *chanSource) ReadEvent() (device.InputEvent, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		if c.err != nil {
			return device.InputEvent{}, c.err
		}
		return device.InputEvent{}, io.EOF
	}
}

func (c *chanSource) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

var keyF9 = keycode.KeyF1 + 8

func key(code uint16, value int32) device.InputEvent {
	return device.InputEvent{Type: device.EvKey, Code: code, Value: value}
}

func press(code uint16) device.InputEvent   { return key(code, device.ValueDown) }
func release(code uint16) device.InputEvent { return key(code, device.ValueUp) }
func repeat(code uint16) device.InputEvent  { return key(code, device.ValueRepeat) }

func newTestMonitor(trigger, quit string) (*Monitor, *recorder) {
	opts := Options{Trigger: keycode.MustParseSpec(trigger)}
	if quit != "" {
		opts.Quit = keycode.MustParseSpec(quit)
	}
	r := &recorder{}
	return New(nil, r, opts), r
}

func feed(m *Monitor, events ...device.InputEvent) {
	for _, ev := range events {
		m.Handle(ev)
	}
}

func TestTriggerFiresOncePerPress(t *testing.T) {
	m, r := newTestMonitor("<ctrl>+<shift>+e", "")

	feed(m,
		press(keycode.KeyLeftCtrl),
		press(keycode.KeyLeftShift),
		press(keycode.KeyE),
		repeat(keycode.KeyE),
		repeat(keycode.KeyE),
		repeat(keycode.KeyLeftShift),
	)
	assert.Equal(t, []string{"trigger"}, r.got())

	// Releasing one key re-arms; pressing it again fires again.
	feed(m, release(keycode.KeyE), press(keycode.KeyE))
	assert.Equal(t, []string{"trigger", "trigger"}, r.got())
}

func TestTriggerSupersetMatches(t *testing.T) {
	m, r := newTestMonitor("<ctrl>+<shift>+e", "")

	feed(m,
		press(keycode.KeyW),
		press(keycode.KeyLeftCtrl),
		press(keycode.KeyLeftShift),
		press(keycode.KeyE),
	)
	assert.Equal(t, []string{"trigger"}, r.got())

	// Extra keys going down while satisfied do not re-fire.
	feed(m, press(keycode.KeyA), release(keycode.KeyA))
	assert.Equal(t, []string{"trigger"}, r.got())
}

func TestTriggerAcceptsRightModifiers(t *testing.T) {
	m, r := newTestMonitor("<ctrl>+<alt>+t", "")

	feed(m, press(keycode.KeyRightCtrl), press(keycode.KeyRightAlt), press(keycode.KeyT))
	assert.Equal(t, []string{"trigger"}, r.got())
}

func TestSidedModifierIsStrict(t *testing.T) {
	m, r := newTestMonitor("<ctrl_l>+t", "")

	feed(m, press(keycode.KeyRightCtrl), press(keycode.KeyT))
	assert.Empty(t, r.got())
}

func TestQuitEvaluatedBeforeTrigger(t *testing.T) {
	m, r := newTestMonitor("<f9>", "<f9>+<shift>")

	feed(m, press(keycode.KeyLeftShift), press(keyF9))
	assert.Equal(t, []string{"quit", "trigger"}, r.got())
}

func TestQuitHotkey(t *testing.T) {
	m, r := newTestMonitor("<f9>", "<ctrl>+q")

	feed(m, press(keyF9), release(keyF9))
	feed(m, press(keycode.KeyLeftCtrl), press(keycode.KeyQ))
	assert.Equal(t, []string{"trigger", "quit"}, r.got())
}

func TestNonKeyEventsIgnored(t *testing.T) {
	m, r := newTestMonitor("e", "")

	feed(m,
		device.InputEvent{Type: device.EvRel, Code: device.RelX, Value: 1},
		device.InputEvent{Type: device.EvSyn},
	)
	assert.Empty(t, m.Held())
	assert.Empty(t, r.got())
}

func TestHeldTracking(t *testing.T) {
	m, _ := newTestMonitor("e", "")

	feed(m, press(keycode.KeyB), press(keycode.KeyA), repeat(keycode.KeyC))
	assert.Equal(t, []uint16{keycode.KeyA, keycode.KeyB}, m.Held())

	feed(m, release(keycode.KeyB), release(keycode.KeyZ))
	assert.Equal(t, []uint16{keycode.KeyA}, m.Held())
}

func TestRunStopsOnCancel(t *testing.T) {
	src := newChanSource()
	r := &recorder{}
	m := New(src, r, Options{Trigger: keycode.MustParseSpec("e")})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	src.events <- press(keycode.KeyE)
	src.events <- release(keycode.KeyE)
	require.Eventually(t, func() bool { return len(r.got()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsReadError(t *testing.T) {
	src := newChanSource()
	src.err = errors.New("no such device")
	m := New(src, &recorder{}, Options{Trigger: keycode.MustParseSpec("e")})

	require.NoError(t, src.Close())
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")
}
