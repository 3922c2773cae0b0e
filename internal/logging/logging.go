// Package logging provides structured logging with slog for macrotoggle.
//
// Features:
//   - JSON and text output formats
//   - Log levels (debug, info, warn, error)
//   - Per-component child loggers
//   - Sensitive data redaction
//   - Size-based log rotation with optional gzip compression
//   - Panic capture with crash reports
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written: "stdout", "stderr", "file",
	// "both" (stderr and file), or a file path.
	Output string

	// FilePath is the path to the log file when Output includes "file".
	FilePath string

	// MaxSize is the maximum size of a log file in megabytes before rotation.
	MaxSize int64

	// MaxAge is the maximum age of log files in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be gzip compressed.
	Compress bool

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is the name of the component using this logger.
	Component string

	// writer overrides Output; used by tests.
	writer io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxAge:     7,
		MaxBackups: 3,
		Component:  "macrotoggle",
	}
}

// defaultLogPath follows XDG_STATE_HOME, the conventional home for logs.
func defaultLogPath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "macrotoggle", "macrotoggle.log")
}

// Logger wraps slog.Logger with output management.
type Logger struct {
	*slog.Logger
	base    *slog.Logger // without the component attribute
	config  *Config
	rotator *FileRotator
	mu      *sync.Mutex
}

// global default logger
var (
	defaultLogger *Logger
	loggerOnce    sync.Once
	defaultMu     sync.RWMutex
)

// Default returns the default global logger.
func Default() *Logger {
	loggerOnce.Do(func() {
		l, err := New(DefaultConfig())
		if err != nil {
			// Fallback to stderr
			l = &Logger{
				Logger: slog.Default(),
				base:   slog.Default(),
				config: DefaultConfig(),
				mu:     &sync.Mutex{},
			}
		}
		defaultMu.Lock()
		if defaultLogger == nil {
			defaultLogger = l
		}
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default global logger and routes slog's default
// through it.
func SetDefault(l *Logger) {
	loggerOnce.Do(func() {})
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config: cfg,
		mu:     &sync.Mutex{},
	}

	w, err := l.setupWriter()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Redact sensitive data
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	l.base = slog.New(handler)
	l.Logger = l.base
	if cfg.Component != "" {
		l.Logger = l.base.With(slog.String("component", cfg.Component))
	}
	return l, nil
}

// setupWriter configures the output writer based on config.
func (l *Logger) setupWriter() (io.Writer, error) {
	if l.config.writer != nil {
		return l.config.writer, nil
	}

	output := l.config.Output
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	case "file":
		return l.openRotator(l.config.FilePath)
	case "both":
		r, err := l.openRotator(l.config.FilePath)
		if err != nil {
			return nil, err
		}
		return io.MultiWriter(os.Stderr, r), nil
	default:
		// Anything else names a log file.
		return l.openRotator(output)
	}
}

func (l *Logger) openRotator(path string) (*FileRotator, error) {
	r, err := NewFileRotator(RotatorConfig{
		Path:       path,
		MaxSizeMB:  l.config.MaxSize,
		MaxBackups: l.config.MaxBackups,
		MaxAgeDays: l.config.MaxAge,
		Compress:   l.config.Compress,
	})
	if err != nil {
		return nil, err
	}
	l.rotator = r
	return r, nil
}

// shouldRedact checks if an attribute key contains sensitive data. Key
// code attributes ("code", "codes", "key") are never redacted.
func shouldRedact(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "credential", "private",
		"auth", "cookie", "api_key", "apikey",
		"access_token", "refresh_token", "bearer",
	}

	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.base.With(slog.String("component", name)),
		base:    l.base,
		config:  l.config,
		rotator: l.rotator,
		mu:      l.mu,
	}
}

// Component returns a plain *slog.Logger tagged with the component name, for
// packages that take a *slog.Logger.
func (l *Logger) Component(name string) *slog.Logger {
	return l.WithComponent(name).Logger
}

// Close closes any open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

// Convenience functions for the default logger.

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}
