//go:build !linux

package device

// Keyboard is unavailable on this platform.
type Keyboard struct{}

// OpenKeyboard always fails with ErrUnsupported.
func OpenKeyboard(path string, grab bool) (*Keyboard, error) {
	return nil, &Error{Op: "open", Path: path, Err: ErrUnsupported}
}

func (k *Keyboard) Path() string                   { return "" }
func (k *Keyboard) ReadEvent() (InputEvent, error) { return InputEvent{}, ErrUnsupported }
func (k *Keyboard) Close() error                   { return nil }

// Virtual is unavailable on this platform.
type Virtual struct{}

// CreateVirtual always fails with ErrUnsupported.
func CreateVirtual(opts VirtualOptions) (*Virtual, error) {
	return nil, &Error{Op: "open", Path: "uinput", Err: ErrUnsupported}
}

func (v *Virtual) Name() string                              { return "" }
func (v *Virtual) Write(typ, code uint16, value int32) error { return ErrUnsupported }
func (v *Virtual) Sync() error                               { return ErrUnsupported }
func (v *Virtual) Close() error                              { return nil }

// ListKeyboards always fails with ErrUnsupported.
func ListKeyboards() ([]KeyboardInfo, error) { return nil, ErrUnsupported }

// Discover always fails with ErrUnsupported.
func Discover(exclude string) (string, error) { return "", ErrUnsupported }
