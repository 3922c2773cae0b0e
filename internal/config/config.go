// Package config handles configuration loading, validation, and compilation
// of macro definitions for macrotoggle.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
	"macrotoggle/internal/macro"
)

// Config holds a complete macro definition and the daemon settings around it.
type Config struct {
	// InputDevice is the keyboard to listen on, e.g.
	// /dev/input/by-id/usb-...-event-kbd. Empty means auto-detect.
	InputDevice string `toml:"input_device" json:"input_device" yaml:"input_device"`

	// Grab takes the keyboard exclusively (EVIOCGRAB) so hotkeys do not
	// reach other applications.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`

	// TriggerHotkey toggles the macro, e.g. "<ctrl>+<shift>+e". Required.
	TriggerHotkey string `toml:"trigger_hotkey" json:"trigger_hotkey" yaml:"trigger_hotkey"`

	// QuitHotkey stops the daemon. Optional.
	QuitHotkey string `toml:"quit_hotkey" json:"quit_hotkey" yaml:"quit_hotkey"`

	// Loop restarts the macro from the first step after the last one.
	Loop bool `toml:"loop" json:"loop" yaml:"loop"`

	// ExitOnComplete exits after a non-looping macro finishes instead of
	// waiting for the next trigger.
	ExitOnComplete bool `toml:"exit_on_complete" json:"exit_on_complete" yaml:"exit_on_complete"`

	// Macro is the ordered list of steps.
	Macro []StepConfig `toml:"macro" json:"macro" yaml:"macro"`

	Timing  TimingConfig  `toml:"timing" json:"timing" yaml:"timing"`
	Device  DeviceConfig  `toml:"device" json:"device" yaml:"device"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Notify  NotifyConfig  `toml:"notify" json:"notify" yaml:"notify"`
	Control ControlConfig `toml:"control" json:"control" yaml:"control"`

	// Path is the file the configuration was loaded from.
	Path string `toml:"-" json:"-" yaml:"-"`
}

// StepConfig is one macro step as written in the file. Which fields apply
// depends on Type.
type StepConfig struct {
	Type string `toml:"type" json:"type" yaml:"type"`

	// wait
	Seconds float64 `toml:"seconds" json:"seconds" yaml:"seconds"`

	// key, combo
	Key  string   `toml:"key" json:"key" yaml:"key"`
	Keys []string `toml:"keys" json:"keys" yaml:"keys"`

	// key, mouse_button
	Action string `toml:"action" json:"action" yaml:"action"`

	// mouse_click, mouse_button
	Button string `toml:"button" json:"button" yaml:"button"`
	Count  *int   `toml:"count" json:"count" yaml:"count"`

	// mouse_move
	X    int32  `toml:"x" json:"x" yaml:"x"`
	Y    int32  `toml:"y" json:"y" yaml:"y"`
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	// mouse_scroll
	DX int32 `toml:"dx" json:"dx" yaml:"dx"`
	DY int32 `toml:"dy" json:"dy" yaml:"dy"`
}

// TimingConfig holds synthesis and polling intervals.
type TimingConfig struct {
	// PollQuantumMs bounds how long a wait step runs before checking for
	// pause and stop.
	PollQuantumMs int `toml:"poll_quantum_ms" json:"poll_quantum_ms" yaml:"poll_quantum_ms"`

	// TapDelayMs separates the press and release of a tap.
	TapDelayMs int `toml:"tap_delay_ms" json:"tap_delay_ms" yaml:"tap_delay_ms"`

	// ClickIntervalMs separates the clicks of a multi-click.
	ClickIntervalMs int `toml:"click_interval_ms" json:"click_interval_ms" yaml:"click_interval_ms"`
}

// DeviceConfig holds virtual device and hotplug settings.
type DeviceConfig struct {
	// Name is the uinput device name.
	Name string `toml:"name" json:"name" yaml:"name"`

	// WaitTimeoutSec waits up to this long for InputDevice to appear.
	// Zero fails immediately when it is missing.
	WaitTimeoutSec int `toml:"wait_timeout_sec" json:"wait_timeout_sec" yaml:"wait_timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// NotifyConfig controls desktop notifications on state changes.
type NotifyConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// ControlConfig controls the local control socket used by "macrotoggle ctl".
type ControlConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Socket is the unix socket path. Empty uses $XDG_RUNTIME_DIR.
	Socket string `toml:"socket" json:"socket" yaml:"socket"`
}

// DefaultConfig returns a configuration with every optional field set.
// TriggerHotkey and Macro have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Timing: TimingConfig{
			PollQuantumMs:   50,
			TapDelayMs:      10,
			ClickIntervalMs: 30,
		},
		Device: DeviceConfig{
			Name: device.DefaultVirtualName,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "macrotoggle.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Control: ControlConfig{
			Enabled: true,
		},
	}
}

// ApplyEnvOverrides applies MACROTOGGLE_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MACROTOGGLE_INPUT_DEVICE"); v != "" {
		c.InputDevice = v
	}
	if v := os.Getenv("MACROTOGGLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MACROTOGGLE_LOG_FILE"); v != "" {
		c.Logging.Output = "file"
		c.Logging.FilePath = v
	}
}

// Validate checks the configuration for errors. Warnings are not reported.
func (c *Config) Validate() error {
	errs := ValidateConfig(c)
	if errs.HasErrors() {
		return errs.Errors()
	}
	return nil
}

// TriggerSpec parses the trigger hotkey.
func (c *Config) TriggerSpec() (keycode.Spec, error) {
	return keycode.ParseSpec(c.TriggerHotkey)
}

// QuitSpec parses the quit hotkey. An unset hotkey yields a zero Spec.
func (c *Config) QuitSpec() (keycode.Spec, error) {
	if c.QuitHotkey == "" {
		return keycode.Spec{}, nil
	}
	return keycode.ParseSpec(c.QuitHotkey)
}

// Program compiles the macro steps.
func (c *Config) Program() (macro.Program, error) {
	var errs ValidationErrors
	steps := make([]macro.Step, 0, len(c.Macro))
	for i, sc := range c.Macro {
		step, err := sc.Compile()
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("macro[%d]", i),
				Message: err.Error(),
			})
			continue
		}
		steps = append(steps, step)
	}
	if len(errs) > 0 {
		return macro.Program{}, errs
	}
	return macro.Program{Steps: steps, Loop: c.Loop}, nil
}

// PollQuantum returns the wait polling quantum.
func (t TimingConfig) PollQuantum() time.Duration {
	return time.Duration(t.PollQuantumMs) * time.Millisecond
}

// TapDelay returns the delay between the edges of a tap.
func (t TimingConfig) TapDelay() time.Duration {
	return time.Duration(t.TapDelayMs) * time.Millisecond
}

// ClickInterval returns the delay between clicks.
func (t TimingConfig) ClickInterval() time.Duration {
	return time.Duration(t.ClickIntervalMs) * time.Millisecond
}

// WaitTimeout returns how long to wait for the input device to appear.
func (d DeviceConfig) WaitTimeout() time.Duration {
	return time.Duration(d.WaitTimeoutSec) * time.Second
}

// waitDuration converts seconds to a Duration, saturating at the largest
// Duration instead of wrapping negative.
func waitDuration(seconds float64) time.Duration {
	ns := seconds * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// Compile converts the step into its typed form.
func (s StepConfig) Compile() (macro.Step, error) {
	switch s.Type {
	case "wait":
		if s.Seconds < 0 || math.IsNaN(s.Seconds) {
			return nil, fmt.Errorf("wait: seconds must be a non-negative number, got %v", s.Seconds)
		}
		return macro.Wait{Duration: waitDuration(s.Seconds)}, nil

	case "key":
		tok, err := keycode.Parse(s.Key)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		action, err := macro.ParseAction(s.Action)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		return macro.Key{Token: tok, Action: action}, nil

	case "combo":
		if len(s.Keys) == 0 {
			return nil, fmt.Errorf("combo: keys must not be empty")
		}
		toks := make([]keycode.Token, len(s.Keys))
		for i, raw := range s.Keys {
			tok, err := keycode.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("combo: keys[%d]: %w", i, err)
			}
			toks[i] = tok
		}
		return macro.Combo{Tokens: toks}, nil

	case "mouse_click":
		btn, err := keycode.ParseButton(s.Button)
		if err != nil {
			return nil, fmt.Errorf("mouse_click: %w", err)
		}
		count := 1
		if s.Count != nil {
			count = *s.Count
		}
		if count < 1 {
			return nil, fmt.Errorf("mouse_click: count must be at least 1, got %d", count)
		}
		return macro.MouseClick{Button: btn, Count: count}, nil

	case "mouse_button":
		btn, err := keycode.ParseButton(s.Button)
		if err != nil {
			return nil, fmt.Errorf("mouse_button: %w", err)
		}
		action, err := macro.ParseAction(s.Action)
		if err != nil {
			return nil, fmt.Errorf("mouse_button: %w", err)
		}
		return macro.MouseButton{Button: btn, Action: action}, nil

	case "mouse_move":
		if s.Mode != "" && s.Mode != "relative" {
			return nil, fmt.Errorf("mouse_move: mode %q is not supported (only relative)", s.Mode)
		}
		return macro.MouseMove{DX: s.X, DY: s.Y}, nil

	case "mouse_scroll":
		return macro.MouseScroll{DX: s.DX, DY: s.DY}, nil

	case "":
		return nil, fmt.Errorf("step type is required")

	default:
		return nil, fmt.Errorf("unknown step type %q", s.Type)
	}
}
