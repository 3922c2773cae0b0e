package notify

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busObject answers Notify calls. Methods other than CallWithContext are
// left to the embedded nil interface.
type busObject struct {
	dbus.BusObject
	hang  bool
	id    uint32
	calls []string
	args  [][]any
}

func (b *busObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call {
	b.calls = append(b.calls, method)
	b.args = append(b.args, args)
	if b.hang {
		<-ctx.Done()
		return &dbus.Call{Err: ctx.Err()}
	}
	b.id++
	return &dbus.Call{Body: []any{b.id}}
}

func TestDBusNotifyReplacesPrevious(t *testing.T) {
	obj := &busObject{id: 40}
	d := &DBus{appName: "macrotoggle", timeoutMS: 3000, callTimeout: time.Second, obj: obj}

	require.NoError(t, d.Notify("Macro started", "one"))
	require.NoError(t, d.Notify("Macro paused", "two"))

	assert.Equal(t, []string{notifyCall, notifyCall}, obj.calls)
	assert.Equal(t, "macrotoggle", obj.args[0][0])
	assert.Equal(t, uint32(0), obj.args[0][1])
	assert.Equal(t, uint32(41), obj.args[1][1])
	assert.Equal(t, "Macro paused", obj.args[1][3])
	assert.Equal(t, uint32(42), d.lastID)
}

func TestDBusNotifyTimesOut(t *testing.T) {
	d := &DBus{appName: "macrotoggle", callTimeout: 20 * time.Millisecond, obj: &busObject{hang: true}}

	start := time.Now()
	err := d.Notify("Macro finished", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
