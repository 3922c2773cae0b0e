package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// freedesktop notification service
const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall = busName + ".Notify"

	// callTimeout bounds each bus round trip, including the ones drained
	// on shutdown.
	callTimeout = 2 * time.Second
)

// DBus sends notifications over the session bus. Each notification replaces
// the previous one so only the current state is on screen.
type DBus struct {
	appName     string
	timeoutMS   int32
	callTimeout time.Duration

	conn *dbus.Conn
	obj  dbus.BusObject

	mu     sync.Mutex
	lastID uint32
}

// ConnectDBus opens a private session bus connection.
func ConnectDBus(appName string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &DBus{
		appName:     appName,
		timeoutMS:   3000,
		callTimeout: callTimeout,
		conn:        conn,
		obj:         conn.Object(busName, objectPath),
	}, nil
}

// Notify implements Notifier.
func (d *DBus) Notify(summary, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
	defer cancel()

	call := d.obj.CallWithContext(ctx, notifyCall, 0,
		d.appName,
		d.lastID,
		"input-keyboard",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(0))},
		d.timeoutMS,
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify reply: %w", err)
	}
	d.lastID = id
	return nil
}

// Close closes the bus connection.
func (d *DBus) Close() error {
	return d.conn.Close()
}
