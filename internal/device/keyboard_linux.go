//go:build linux

package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// rawEvent matches the kernel's struct input_event.
type rawEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var rawEventSize = binary.Size(rawEvent{})

// ioctl requests.
const (
	eviocgrab = 0x40044590 // _IOW('E', 0x90, int)
)

// Keyboard is an open evdev node.
type Keyboard struct {
	path string
	f    *os.File
	buf  []byte

	mu      sync.Mutex
	grabbed bool
	closed  bool
}

// OpenKeyboard opens an evdev node for reading. With grab set, the device is
// grabbed exclusively so that its events reach no other reader.
func OpenKeyboard(path string, grab bool) (*Keyboard, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}

	k := &Keyboard{
		path: path,
		f:    f,
		buf:  make([]byte, rawEventSize),
	}

	if grab {
		if err := k.ioctl(eviocgrab, 1); err != nil {
			f.Close()
			return nil, &Error{Op: "grab", Path: path, Err: err}
		}
		k.grabbed = true
	}

	return k, nil
}

// Path returns the device node path.
func (k *Keyboard) Path() string { return k.path }

// ReadEvent blocks until the next event is available. After Close it
// returns an error wrapping os.ErrClosed.
func (k *Keyboard) ReadEvent() (InputEvent, error) {
	if _, err := io.ReadFull(k.f, k.buf); err != nil {
		return InputEvent{}, &Error{Op: "read", Path: k.path, Err: err}
	}

	var raw rawEvent
	if err := binary.Read(bytes.NewReader(k.buf), binary.NativeEndian, &raw); err != nil {
		return InputEvent{}, &Error{Op: "decode", Path: k.path, Err: err}
	}

	return InputEvent{
		Time:  time.Unix(raw.Time.Unix()),
		Type:  raw.Type,
		Code:  raw.Code,
		Value: raw.Value,
	}, nil
}

// Close releases the grab (if any) and closes the node, unblocking a
// pending ReadEvent.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true

	var errs []error
	if k.grabbed {
		if err := k.ioctl(eviocgrab, 0); err != nil {
			errs = append(errs, &Error{Op: "ungrab", Path: k.path, Err: err})
		}
	}
	if err := k.f.Close(); err != nil {
		errs = append(errs, &Error{Op: "close", Path: k.path, Err: err})
	}
	return errors.Join(errs...)
}

// ioctl runs an integer ioctl without switching the file to blocking mode,
// which os.File.Fd would do.
func (k *Keyboard) ioctl(req uint, value int) error {
	rc, err := k.f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetInt(int(fd), req, value)
	}); err != nil {
		return err
	}
	return ioErr
}
