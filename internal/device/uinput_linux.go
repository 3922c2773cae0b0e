//go:build linux

package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// UinputPath is the uinput control node.
const UinputPath = "/dev/uinput"

// uinput ioctl requests.
const (
	uiDevCreate  = 0x5501     // _IO('U', 1)
	uiDevDestroy = 0x5502     // _IO('U', 2)
	uiDevSetup   = 0x405c5503 // _IOW('U', 3, struct uinput_setup)
	uiSetEvBit   = 0x40045564 // _IOW('U', 100, int)
	uiSetKeyBit  = 0x40045565 // _IOW('U', 101, int)
	uiSetRelBit  = 0x40045566 // _IOW('U', 102, int)
)

const busVirtual = 0x06

// uinputSetup matches struct uinput_setup.
type uinputSetup struct {
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	Name         [80]byte
	FFEffectsMax uint32
}

// Virtual is a uinput device accepting key, button and relative events.
type Virtual struct {
	name string
	f    *os.File

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// CreateVirtual opens /dev/uinput and registers a virtual device able to
// emit opts.Keys plus relative X/Y and both wheels.
func CreateVirtual(opts VirtualOptions) (*Virtual, error) {
	name := opts.Name
	if name == "" {
		name = DefaultVirtualName
	}

	f, err := os.OpenFile(UinputPath, os.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &Error{Op: "open", Path: UinputPath, Err: err}
	}

	v := &Virtual{name: name, f: f}
	if err := v.setup(opts.Keys); err != nil {
		f.Close()
		return nil, &Error{Op: "setup", Path: UinputPath, Err: err}
	}
	return v, nil
}

func (v *Virtual) setup(keys []uint16) error {
	rc, err := v.f.SyscallConn()
	if err != nil {
		return err
	}

	var setupErr error
	err = rc.Control(func(fd uintptr) {
		ifd := int(fd)
		for _, ev := range []uint16{EvSyn, EvKey, EvRel} {
			if setupErr = unix.IoctlSetInt(ifd, uiSetEvBit, int(ev)); setupErr != nil {
				return
			}
		}
		for _, code := range keys {
			if setupErr = unix.IoctlSetInt(ifd, uiSetKeyBit, int(code)); setupErr != nil {
				return
			}
		}
		for _, axis := range []uint16{RelX, RelY, RelHWheel, RelWheel} {
			if setupErr = unix.IoctlSetInt(ifd, uiSetRelBit, int(axis)); setupErr != nil {
				return
			}
		}

		setup := uinputSetup{
			Bustype: busVirtual,
			Vendor:  0x1d6b,
			Product: 0x0104,
			Version: 1,
		}
		copy(setup.Name[:len(setup.Name)-1], v.name)
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
			setupErr = errno
			return
		}

		setupErr = unix.IoctlSetInt(ifd, uiDevCreate, 0)
	})
	if err != nil {
		return err
	}
	return setupErr
}

// Name returns the registered device name.
func (v *Virtual) Name() string { return v.name }

// Write emits a single event. The kernel forwards it once Sync is called.
func (v *Virtual) Write(typ, code uint16, value int32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return &Error{Op: "write", Path: UinputPath, Err: os.ErrClosed}
	}

	v.buf.Reset()
	ev := rawEvent{Type: typ, Code: code, Value: value}
	if err := binary.Write(&v.buf, binary.NativeEndian, &ev); err != nil {
		return &Error{Op: "encode", Path: UinputPath, Err: err}
	}
	if _, err := v.f.Write(v.buf.Bytes()); err != nil {
		return &Error{Op: "write", Path: UinputPath, Err: err}
	}
	return nil
}

// Sync emits SYN_REPORT.
func (v *Virtual) Sync() error {
	return v.Write(EvSyn, SynReport, 0)
}

// Close destroys the virtual device.
func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var errs []error
	rc, err := v.f.SyscallConn()
	if err == nil {
		err = rc.Control(func(fd uintptr) {
			if ioErr := unix.IoctlSetInt(int(fd), uiDevDestroy, 0); ioErr != nil {
				errs = append(errs, &Error{Op: "destroy", Path: UinputPath, Err: ioErr})
			}
		})
	}
	if err != nil {
		errs = append(errs, &Error{Op: "destroy", Path: UinputPath, Err: err})
	}
	if err := v.f.Close(); err != nil {
		errs = append(errs, &Error{Op: "close", Path: UinputPath, Err: err})
	}
	return errors.Join(errs...)
}
