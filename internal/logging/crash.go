package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ErrPanic wraps a recovered panic returned by CrashHandler.Run.
var ErrPanic = errors.New("panic")

// CrashReport represents information about a crash.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version,omitempty"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash dumps. Empty disables dumps.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a one-line crash record. Nil uses slog.Default.
	Logger *slog.Logger

	// OnCrash is called after a crash is recorded, before Run returns.
	OnCrash func(CrashReport)
}

// CrashHandler turns panics into crash reports and errors.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	log       *slog.Logger
	onCrash   func(CrashReport)
}

// DefaultCrashDir returns $XDG_STATE_HOME/macrotoggle/crashes.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{CrashDir: DefaultCrashDir()}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		log:       log,
		onCrash:   cfg.OnCrash,
	}
}

// Run calls fn and converts a panic into an error wrapping ErrPanic, after
// recording it and running the OnCrash hook.
func (h *CrashHandler) Run(contextInfo map[string]any, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report := h.HandlePanic(r, debug.Stack(), contextInfo)
			err = fmt.Errorf("%w: %s", ErrPanic, report.PanicValue)
		}
	}()
	return fn()
}

// HandlePanic records a recovered panic value and its stack.
func (h *CrashHandler) HandlePanic(panicValue any, stack []byte, contextInfo map[string]any) CrashReport {
	h.mu.Lock()
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(stack),
		Component:    h.component,
		Context:      contextInfo,
	}

	path, werr := h.writeCrashDump(report)
	h.mu.Unlock()

	attrs := []any{"panic", report.PanicValue}
	switch {
	case werr != nil:
		attrs = append(attrs, "dump_error", werr)
	case path != "":
		attrs = append(attrs, "dump", path)
	}
	h.log.Error("crash", attrs...)

	if h.onCrash != nil {
		h.onCrash(report)
	}
	return report
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if h.crashDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json",
		report.Component,
		report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads back the crash reports in the crash directory.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}

		reports = append(reports, report)
	}

	return reports, nil
}

// CleanupOld removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOld(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}

	return nil
}
