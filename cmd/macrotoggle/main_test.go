package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrotoggle/internal/config"
	"macrotoggle/internal/controller"
	"macrotoggle/internal/ipc"
	"macrotoggle/internal/logging"
	"macrotoggle/internal/output"
)

const validMacro = `
trigger_hotkey = "<ctrl>+<shift>+e"
quit_hotkey = "<ctrl>+<shift>+q"
loop = true

[[macro]]
type = "key"
key = "w"
action = "press"

[[macro]]
type = "wait"
seconds = 99999

[[macro]]
type = "combo"
keys = ["<ctrl>", "c"]
`

func writeMacro(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestCheckPrintsSummary(t *testing.T) {
	path := writeMacro(t, "macros.toml", validMacro)

	code, out, _ := runCLI("check", "-c", path)
	require.Equal(t, exitOK, code)

	assert.Contains(t, out, "Config:       "+path)
	assert.Contains(t, out, "Input device: (auto-detect)")
	assert.Contains(t, out, "Trigger:      <ctrl>+<shift>+e")
	assert.Contains(t, out, "Quit:         <ctrl>+<shift>+q")
	assert.Contains(t, out, "Loop:         true")
	assert.Contains(t, out, "Steps:        3")
	assert.Contains(t, out, "1. key press w")
	assert.Contains(t, out, "3. combo <ctrl>+c")
}

func TestCheckPositionalPath(t *testing.T) {
	path := writeMacro(t, "macros.toml", validMacro)

	code, out, _ := runCLI("check", path)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Steps:        3")
}

func TestCheckWarnsAboutMissingDevice(t *testing.T) {
	path := writeMacro(t, "macros.toml", `input_device = "/nonexistent/event-kbd"`+validMacro)

	code, _, errOut := runCLI("check", path)
	require.Equal(t, exitOK, code)
	assert.Contains(t, errOut, "Warning:")
	assert.Contains(t, errOut, "input_device")
}

func TestCheckInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"unknown step":  "trigger_hotkey = \"<f9>\"\n[[macro]]\ntype = \"teleport\"\n",
		"bad key":       "trigger_hotkey = \"<f9>\"\n[[macro]]\ntype = \"key\"\nkey = \"<nosuchkey>\"\n",
		"no trigger":    "[[macro]]\ntype = \"wait\"\nseconds = 1\n",
		"empty macro":   "trigger_hotkey = \"<f9>\"\nmacro = []\n",
		"quit==trigger": "trigger_hotkey = \"<f9>\"\nquit_hotkey = \"<f9>\"\n[[macro]]\ntype = \"wait\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeMacro(t, "macros.toml", content)
			code, out, errOut := runCLI("check", path)
			assert.Equal(t, exitConfig, code)
			assert.Empty(t, out)
			assert.Contains(t, errOut, "Error:")
		})
	}
}

func TestCheckMissingFile(t *testing.T) {
	code, _, errOut := runCLI("check", "-c", filepath.Join(t.TempDir(), "absent.toml"))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "read config")
}

func TestCheckRejectsTwoPaths(t *testing.T) {
	path := writeMacro(t, "macros.toml", validMacro)
	code, _, errOut := runCLI("check", "-c", path, path)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "both")
}

func TestRunInvalidConfigExitsBeforeDevices(t *testing.T) {
	path := writeMacro(t, "macros.toml", "trigger_hotkey = \"<f9>\"\n")
	code, _, errOut := runCLI("run", "--dry-run", path)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "Error:")
}

func TestKeys(t *testing.T) {
	code, out, _ := runCLI("keys")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "f24")
	assert.Contains(t, out, "ctrl")
	assert.Contains(t, out, "Mouse buttons:")
	assert.Contains(t, out, "middle")
}

func TestHelpAndVersion(t *testing.T) {
	code, out, _ := runCLI("help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "USAGE:")

	code, out, _ = runCLI("version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "macrotoggle "+version)
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI("frobnicate")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")
}

func TestNewLogger(t *testing.T) {
	lc := config.DefaultConfig().Logging
	lc.Level = "warn"

	log, err := newLogger(lc, false)
	require.NoError(t, err)
	ctx := context.Background()
	assert.True(t, log.Enabled(ctx, slog.LevelWarn))
	assert.False(t, log.Enabled(ctx, slog.LevelInfo))

	log, err = newLogger(lc, true)
	require.NoError(t, err)
	assert.True(t, log.Enabled(ctx, slog.LevelDebug))

	lc.Level = "loud"
	_, err = newLogger(lc, false)
	assert.Error(t, err)

	lc.Level = "info"
	lc.Format = "xml"
	_, err = newLogger(lc, false)
	assert.Error(t, err)
}

func TestNewLoggerFile(t *testing.T) {
	lc := config.DefaultConfig().Logging
	lc.Output = "file"
	lc.FilePath = filepath.Join(t.TempDir(), "logs", "macrotoggle.log")

	log, err := newLogger(lc, false)
	require.NoError(t, err)
	log.Info("hello from test")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(lc.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func startControl(t *testing.T) (*controller.Controller, string) {
	t.Helper()
	path := writeMacro(t, "macros.toml", validMacro)
	l, err := load(path)
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	synth := output.New(output.NewLogSink(quiet), output.Options{Logger: quiet})
	ctrl := controller.New(synth, controller.Options{Program: l.program, Logger: quiet})

	socket := filepath.Join(t.TempDir(), "ctl.sock")
	cfg := ipc.DefaultServerConfig(socket)
	cfg.Logger = quiet
	srv := ipc.NewServer(cfg, &controlHandler{ctrl: ctrl, l: l, device: "/dev/input/event3", started: time.Now()})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return ctrl, socket
}

func TestCtlStatus(t *testing.T) {
	_, socket := startControl(t)

	code, out, errOut := runCLI("ctl", "-s", socket, "status")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "State:   idle")
	assert.Contains(t, out, "Trigger: <ctrl>+<shift>+e")
	assert.Contains(t, out, "Steps:   3 (loop true)")
	assert.Contains(t, out, "Device:  /dev/input/event3")

	code, out, _ = runCLI("ctl", "-s", socket, "--json", "status")
	require.Equal(t, exitOK, code)
	var status ipc.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, os.Getpid(), status.PID)
}

func TestCtlToggleAndQuit(t *testing.T) {
	ctrl, socket := startControl(t)

	code, out, _ := runCLI("ctl", "-s", socket, "toggle")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "toggle sent (was idle)\n", out)

	code, out, _ = runCLI("ctl", "-s", socket, "quit")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "quit sent (was idle)\n", out)

	// The queued toggle is overridden by the quit request.
	require.NoError(t, ctrl.Run(context.Background()))
	assert.Equal(t, controller.Stopped, ctrl.State())
}

func TestCtlPing(t *testing.T) {
	_, socket := startControl(t)
	code, out, _ := runCLI("ctl", "-s", socket, "ping")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "pong\n", out)
}

func TestCtlErrors(t *testing.T) {
	code, _, errOut := runCLI("ctl", "-s", filepath.Join(t.TempDir(), "none.sock"), "status")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "daemon is not running")

	code, _, errOut = runCLI("ctl")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "Usage:")

	_, socket := startControl(t)
	code, _, errOut = runCLI("ctl", "-s", socket, "explode")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "Unknown ctl action")
}

func TestPruneCrashReports(t *testing.T) {
	dir := t.TempDir()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{CrashDir: dir, Logger: quiet})

	writeReport := func(name string, age time.Duration) string {
		data, err := json.Marshal(logging.CrashReport{Timestamp: time.Now().Add(-age), PanicValue: name})
		require.NoError(t, err)
		path := filepath.Join(dir, "crash-macrotoggle-"+name+".json")
		require.NoError(t, os.WriteFile(path, data, 0600))
		mtime := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}
	stale := writeReport("stale", 10*24*time.Hour)
	fresh := writeReport("fresh", time.Hour)

	assert.Equal(t, 1, pruneCrashReports(crash, 7, quiet))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)

	// Zero retention keeps everything.
	writeReport("ancient", 400*24*time.Hour)
	assert.Equal(t, 2, pruneCrashReports(crash, 0, quiet))
}
