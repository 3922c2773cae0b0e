// Package output synthesizes key, button and pointer input on a virtual
// device and keeps track of which keys and buttons are currently held down,
// so that every hold can be released on demand.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"macrotoggle/internal/device"
)

// Sink accepts raw input events. *device.Virtual implements it.
type Sink interface {
	Write(typ, code uint16, value int32) error
	Sync() error
}

// Options configures a Synthesizer.
type Options struct {
	// TapDelay separates the press and release edges of a tap.
	TapDelay time.Duration

	// ClickInterval separates consecutive clicks of a multi-click.
	ClickInterval time.Duration

	Logger *slog.Logger
}

// Synthesizer emits input through a Sink.
//
// Writes are not serialized against each other: the macro engine is the only
// writer while it runs, and the controller only writes after the engine has
// acknowledged a pause or stop. The held set itself is guarded so it can be
// inspected at any time.
type Synthesizer struct {
	sink  Sink
	opts  Options
	log   *slog.Logger
	sleep func(time.Duration)

	mu   sync.Mutex
	held []uint16 // press order
}

// New returns a Synthesizer writing to sink.
func New(sink Sink, opts Options) *Synthesizer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{
		sink:  sink,
		opts:  opts,
		log:   log,
		sleep: time.Sleep,
	}
}

// Press emits a down edge for code and records it as held.
func (s *Synthesizer) Press(code uint16) error {
	if err := s.emit(code, device.ValueDown); err != nil {
		return fmt.Errorf("press %d: %w", code, err)
	}
	s.mu.Lock()
	if !slices.Contains(s.held, code) {
		s.held = append(s.held, code)
	}
	s.mu.Unlock()
	return nil
}

// Release emits an up edge for code and removes it from the held set.
func (s *Synthesizer) Release(code uint16) error {
	if err := s.emit(code, device.ValueUp); err != nil {
		return fmt.Errorf("release %d: %w", code, err)
	}
	s.forget(code)
	return nil
}

// Tap presses and releases code, separated by the tap delay.
func (s *Synthesizer) Tap(code uint16) error {
	if err := s.Press(code); err != nil {
		return err
	}
	s.pause(s.opts.TapDelay)
	return s.Release(code)
}

// Combo presses codes in order and releases them in reverse order. If a
// write fails part way, the keys already down stay in the held set.
func (s *Synthesizer) Combo(codes []uint16) error {
	for _, code := range codes {
		if err := s.Press(code); err != nil {
			return err
		}
	}
	s.pause(s.opts.TapDelay)
	for i := len(codes) - 1; i >= 0; i-- {
		if err := s.Release(codes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Click performs count press/release cycles on a mouse button.
func (s *Synthesizer) Click(button uint16, count int) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			s.pause(s.opts.ClickInterval)
		}
		if err := s.Tap(button); err != nil {
			return err
		}
	}
	return nil
}

// Move emits one relative pointer motion.
func (s *Synthesizer) Move(dx, dy int32) error {
	if err := s.sink.Write(device.EvRel, device.RelX, dx); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if err := s.sink.Write(device.EvRel, device.RelY, dy); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if err := s.sink.Sync(); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	return nil
}

// Scroll emits wheel motion: dy on the vertical wheel, dx on the horizontal
// one. Zero axes are skipped.
func (s *Synthesizer) Scroll(dx, dy int32) error {
	if dx == 0 && dy == 0 {
		return nil
	}
	if dy != 0 {
		if err := s.sink.Write(device.EvRel, device.RelWheel, dy); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
	}
	if dx != 0 {
		if err := s.sink.Write(device.EvRel, device.RelHWheel, dx); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
	}
	if err := s.sink.Sync(); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Held returns the currently held codes in press order.
func (s *Synthesizer) Held() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.held)
}

// ReleaseAll releases every held code and returns the codes that were held,
// in press order. It keeps going when a release fails; the held set is
// always empty afterwards and the failures are joined into the error.
func (s *Synthesizer) ReleaseAll() ([]uint16, error) {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()

	var errs []error
	for _, code := range held {
		if err := s.sink.Write(device.EvKey, code, device.ValueUp); err != nil {
			errs = append(errs, fmt.Errorf("release %d: %w", code, err))
		}
	}
	if len(held) > 0 {
		if err := s.sink.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("release sync: %w", err))
		}
		s.log.Debug("released held outputs", "codes", held)
	}
	return held, errors.Join(errs...)
}

// Restore presses codes again, in order, after a ReleaseAll.
func (s *Synthesizer) Restore(codes []uint16) error {
	for _, code := range codes {
		if err := s.Press(code); err != nil {
			return err
		}
	}
	if len(codes) > 0 {
		s.log.Debug("restored held outputs", "codes", codes)
	}
	return nil
}

func (s *Synthesizer) emit(code uint16, value int32) error {
	if err := s.sink.Write(device.EvKey, code, value); err != nil {
		return err
	}
	return s.sink.Sync()
}

func (s *Synthesizer) forget(code uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.held, code); i >= 0 {
		s.held = slices.Delete(s.held, i, i+1)
	}
}

func (s *Synthesizer) pause(d time.Duration) {
	if d > 0 {
		s.sleep(d)
	}
}
