package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks every field and compiles the hotkeys and steps. The
// result includes warnings; use Errors or HasErrors to filter.
func ValidateConfig(c *Config) ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, validateHotkeys(c)...)
	errs = append(errs, validateMacro(c)...)
	errs = append(errs, validateTiming(&c.Timing)...)
	errs = append(errs, validateDevice(c)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	return errs
}

func validateHotkeys(c *Config) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.TriggerHotkey) == "" {
		errs = append(errs, *RequiredFieldError("trigger_hotkey"))
	} else if _, err := c.TriggerSpec(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "trigger_hotkey",
			Message: err.Error(),
		})
	}

	if _, err := c.QuitSpec(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "quit_hotkey",
			Message: err.Error(),
		})
	}

	if c.QuitHotkey != "" {
		trigger, terr := c.TriggerSpec()
		quit, qerr := c.QuitSpec()
		if terr == nil && qerr == nil && trigger.String() == quit.String() {
			errs = append(errs, ValidationError{
				Field:   "quit_hotkey",
				Message: "quit hotkey must differ from the trigger hotkey",
			})
		}
	}

	return errs
}

func validateMacro(c *Config) ValidationErrors {
	if len(c.Macro) == 0 {
		return ValidationErrors{{
			Field:   "macro",
			Message: "macro must contain at least one step",
		}}
	}

	_, err := c.Program()
	var errs ValidationErrors
	if errors.As(err, &errs) {
		return errs
	}
	if err != nil {
		return ValidationErrors{{Field: "macro", Message: err.Error()}}
	}
	return nil
}

func validateTiming(t *TimingConfig) ValidationErrors {
	var errs ValidationErrors

	if t.PollQuantumMs < 1 || t.PollQuantumMs > 1000 {
		errs = append(errs, *RangeError("timing.poll_quantum_ms", 1, 1000))
	}
	if t.TapDelayMs < 0 || t.TapDelayMs > 1000 {
		errs = append(errs, *RangeError("timing.tap_delay_ms", 0, 1000))
	}
	if t.ClickIntervalMs < 0 || t.ClickIntervalMs > 5000 {
		errs = append(errs, *RangeError("timing.click_interval_ms", 0, 5000))
	}

	return errs
}

func validateDevice(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Device.Name == "" {
		errs = append(errs, *RequiredFieldError("device.name"))
	} else if len(c.Device.Name) >= 80 {
		errs = append(errs, ValidationError{
			Field:   "device.name",
			Message: "name must be shorter than 80 bytes",
		})
	}

	if c.Device.WaitTimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "device.wait_timeout_sec",
			Message: "wait timeout cannot be negative",
		})
	}

	// A missing device may still be plugged in before the daemon starts.
	if c.InputDevice != "" {
		if _, err := os.Stat(c.InputDevice); err != nil {
			errs = append(errs, ValidationError{
				Field:   "input_device",
				Message: fmt.Sprintf("device not accessible: %v", err),
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	case "":
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: "log output is required",
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"input_device", // may be hotplugged later
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")
