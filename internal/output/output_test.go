package output

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
)

type event struct {
	Type  uint16
	Code  uint16
	Value int32
}

type recordingSink struct {
	mu     sync.Mutex
	events []event
	failOn func(event) bool
}

func (r *recordingSink) Write(typ, code uint16, value int32) error {
	ev := event{typ, code, value}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil && r.failOn(ev) {
		return errors.New("sink rejected write")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Sync() error {
	return r.Write(device.EvSyn, device.SynReport, 0)
}

// keys returns the EV_KEY events only.
func (r *recordingSink) keys() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, ev := range r.events {
		if ev.Type == device.EvKey {
			out = append(out, ev)
		}
	}
	return out
}

func newTestSynth(sink Sink) *Synthesizer {
	s := New(sink, Options{TapDelay: 5 * time.Millisecond, ClickInterval: 5 * time.Millisecond})
	s.sleep = func(time.Duration) {}
	return s
}

func down(code uint16) event { return event{device.EvKey, code, device.ValueDown} }
func up(code uint16) event   { return event{device.EvKey, code, device.ValueUp} }

func TestPressReleaseTracksHeld(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	require.NoError(t, s.Press(keycode.KeyW))
	require.NoError(t, s.Press(keycode.KeyLeftShift))
	assert.Equal(t, []uint16{keycode.KeyW, keycode.KeyLeftShift}, s.Held())

	require.NoError(t, s.Release(keycode.KeyW))
	assert.Equal(t, []uint16{keycode.KeyLeftShift}, s.Held())

	// Each edge is followed by a SYN_REPORT.
	assert.Len(t, sink.events, 6)
	assert.Equal(t, event{device.EvSyn, device.SynReport, 0}, sink.events[1])
}

func TestTapLeavesNothingHeld(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	var slept time.Duration
	s.sleep = func(d time.Duration) { slept += d }

	require.NoError(t, s.Tap(keycode.KeyE))
	assert.Empty(t, s.Held())
	assert.Equal(t, []event{down(keycode.KeyE), up(keycode.KeyE)}, sink.keys())
	assert.Equal(t, 5*time.Millisecond, slept)
}

func TestComboReleasesInReverse(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	codes := []uint16{keycode.KeyLeftCtrl, keycode.KeyLeftShift, keycode.KeyT}
	require.NoError(t, s.Combo(codes))

	assert.Equal(t, []event{
		down(keycode.KeyLeftCtrl), down(keycode.KeyLeftShift), down(keycode.KeyT),
		up(keycode.KeyT), up(keycode.KeyLeftShift), up(keycode.KeyLeftCtrl),
	}, sink.keys())
	assert.Empty(t, s.Held())
}

func TestComboFailureKeepsPressedSubsetHeld(t *testing.T) {
	sink := &recordingSink{failOn: func(ev event) bool {
		return ev == down(keycode.KeyT)
	}}
	s := newTestSynth(sink)

	err := s.Combo([]uint16{keycode.KeyLeftCtrl, keycode.KeyLeftShift, keycode.KeyT})
	require.Error(t, err)
	assert.Equal(t, []uint16{keycode.KeyLeftCtrl, keycode.KeyLeftShift}, s.Held())

	sink.failOn = nil
	released, err := s.ReleaseAll()
	require.NoError(t, err)
	assert.Equal(t, []uint16{keycode.KeyLeftCtrl, keycode.KeyLeftShift}, released)
	assert.Empty(t, s.Held())
}

func TestClickCount(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	var pauses []time.Duration
	s.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	require.NoError(t, s.Click(keycode.BtnLeft, 2))
	assert.Equal(t, []event{
		down(keycode.BtnLeft), up(keycode.BtnLeft),
		down(keycode.BtnLeft), up(keycode.BtnLeft),
	}, sink.keys())
	// tap, interval, tap
	assert.Len(t, pauses, 3)
}

func TestMoveAndScroll(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	require.NoError(t, s.Move(10, -5))
	require.NoError(t, s.Scroll(0, -3))
	require.NoError(t, s.Scroll(2, 0))
	require.NoError(t, s.Scroll(0, 0))

	assert.Equal(t, []event{
		{device.EvRel, device.RelX, 10},
		{device.EvRel, device.RelY, -5},
		{device.EvSyn, device.SynReport, 0},
		{device.EvRel, device.RelWheel, -3},
		{device.EvSyn, device.SynReport, 0},
		{device.EvRel, device.RelHWheel, 2},
		{device.EvSyn, device.SynReport, 0},
	}, sink.events)
}

func TestReleaseAllAndRestore(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	require.NoError(t, s.Press(keycode.KeyW))
	require.NoError(t, s.Press(keycode.BtnRight))

	held, err := s.ReleaseAll()
	require.NoError(t, err)
	assert.Equal(t, []uint16{keycode.KeyW, keycode.BtnRight}, held)
	assert.Empty(t, s.Held())

	require.NoError(t, s.Restore(held))
	assert.Equal(t, held, s.Held())

	assert.Equal(t, []event{
		down(keycode.KeyW), down(keycode.BtnRight),
		up(keycode.KeyW), up(keycode.BtnRight),
		down(keycode.KeyW), down(keycode.BtnRight),
	}, sink.keys())
}

func TestReleaseAllEmptyWritesNothing(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)

	held, err := s.ReleaseAll()
	require.NoError(t, err)
	assert.Empty(t, held)
	assert.Empty(t, sink.events)
}

func TestReleaseAllContinuesAfterFailure(t *testing.T) {
	sink := &recordingSink{}
	s := newTestSynth(sink)
	require.NoError(t, s.Press(keycode.KeyA))
	require.NoError(t, s.Press(keycode.KeyB))

	sink.failOn = func(ev event) bool { return ev == up(keycode.KeyA) }
	held, err := s.ReleaseAll()
	require.Error(t, err)
	assert.Equal(t, []uint16{keycode.KeyA, keycode.KeyB}, held)
	assert.Empty(t, s.Held())
	assert.Contains(t, sink.keys(), up(keycode.KeyB))
}

func TestWriteFailureIsReturned(t *testing.T) {
	sink := &recordingSink{failOn: func(event) bool { return true }}
	s := newTestSynth(sink)

	assert.Error(t, s.Press(keycode.KeyA))
	assert.Empty(t, s.Held())
	assert.Error(t, s.Move(1, 1))
}

func TestLogSink(t *testing.T) {
	l := NewLogSink(nil)
	assert.NoError(t, l.Write(device.EvKey, keycode.KeyA, 1))
	assert.NoError(t, l.Sync())
	assert.NoError(t, l.Close())
}
