// macrotoggle - Hotkey-toggled keyboard and mouse macros for Linux
//
// A trigger hotkey on a physical keyboard starts, pauses and resumes a macro
// that is played through a uinput virtual device:
//
//	macrotoggle [run] [-c file] [--dry-run]  Run the daemon
//	macrotoggle check [-c file]              Validate a macro file
//	macrotoggle devices                      List detected keyboards
//	macrotoggle keys                         List key and button names
//	macrotoggle ctl toggle|quit|status       Control a running daemon
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"macrotoggle/internal/config"
	"macrotoggle/internal/device"
	"macrotoggle/internal/keycode"
	"macrotoggle/internal/logging"
	"macrotoggle/internal/macro"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "run", "check", "devices", "keys", "ctl", "help", "version":
			cmd, args = args[0], args[1:]
		default:
			// "macrotoggle macros.toml" runs that file.
			if _, err := os.Stat(args[0]); err != nil {
				fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
				usage(stderr)
				return exitFailure
			}
		}
	}

	switch cmd {
	case "run":
		return cmdRun(args, stderr)
	case "check":
		return cmdCheck(args, stdout, stderr)
	case "devices":
		return cmdDevices(stdout, stderr)
	case "keys":
		return cmdKeys(stdout)
	case "ctl":
		return cmdCtl(args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "macrotoggle %s\n", version)
		return exitOK
	default:
		usage(stdout)
		return exitOK
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `macrotoggle - Hotkey-toggled input macros

USAGE:
    macrotoggle [command] [options] [config]

COMMANDS:
    run          Run the macro daemon (default)
    check        Validate a macro file and print its steps
    devices      List detected keyboards
    keys         List accepted key tokens and mouse buttons
    ctl <action> Control a running daemon: toggle, quit, status, ping
    version      Print the version
    help         Show this help message

RUN OPTIONS:
    -c <file>    Macro file (default: ./macros.toml or %s)
    --dry-run    Log synthesized input instead of writing to /dev/uinput
    -v           Debug logging

CONTROLS:
    trigger hotkey   start, pause, resume
    quit hotkey      release held input and exit
    SIGINT/SIGTERM   same as the quit hotkey

EXIT STATUS:
    0 clean exit, 1 runtime error, 2 invalid configuration
`, config.ConfigPath())
}

// loadFlags parses the flags shared by run and check. A positional argument
// is taken as the config path.
func loadFlags(name string, args []string, stderr io.Writer, extra func(*flag.FlagSet)) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("c", "", "Macro file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() > 1 {
		return "", fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args()[1:], " "))
	}
	if fs.NArg() == 1 {
		if *path != "" {
			return "", errors.New("config given both with -c and as an argument")
		}
		*path = fs.Arg(0)
	}
	return *path, nil
}

// loaded is a validated configuration with its compiled parts.
type loaded struct {
	cfg     *config.Config
	program macro.Program
	trigger keycode.Spec
	quit    keycode.Spec
}

func load(path string) (*loaded, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	program, err := cfg.Program()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Path, err)
	}
	trigger, err := cfg.TriggerSpec()
	if err != nil {
		return nil, fmt.Errorf("%s: trigger_hotkey: %w", cfg.Path, err)
	}
	quit, err := cfg.QuitSpec()
	if err != nil {
		return nil, fmt.Errorf("%s: quit_hotkey: %w", cfg.Path, err)
	}
	return &loaded{cfg: cfg, program: program, trigger: trigger, quit: quit}, nil
}

// warnings returns the non-fatal findings Load let through.
func (l *loaded) warnings() config.ValidationErrors {
	return config.ValidateConfig(l.cfg).Warnings()
}

func cmdCheck(args []string, stdout, stderr io.Writer) int {
	path, err := loadFlags("check", args, stderr, nil)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	l, err := load(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	for _, w := range l.warnings() {
		fmt.Fprintf(stderr, "Warning: %s\n", w.Error())
	}

	quit := "(none)"
	if !l.quit.IsZero() {
		quit = l.quit.String()
	}
	inputDevice := l.cfg.InputDevice
	if inputDevice == "" {
		inputDevice = "(auto-detect)"
	}

	fmt.Fprintf(stdout, "Config:       %s\n", l.cfg.Path)
	fmt.Fprintf(stdout, "Input device: %s\n", inputDevice)
	fmt.Fprintf(stdout, "Trigger:      %s\n", l.trigger.String())
	fmt.Fprintf(stdout, "Quit:         %s\n", quit)
	fmt.Fprintf(stdout, "Loop:         %t\n", l.program.Loop)
	fmt.Fprintf(stdout, "Steps:        %d\n", len(l.program.Steps))
	for i, step := range l.program.Steps {
		fmt.Fprintf(stdout, "  %3d. %s\n", i+1, macro.Describe(step))
	}
	return exitOK
}

func cmdDevices(stdout, stderr io.Writer) int {
	keyboards, err := device.ListKeyboards()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if len(keyboards) == 0 {
		fmt.Fprintln(stdout, "No keyboards found.")
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tPHYS")
	for _, kb := range keyboards {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kb.Path, kb.Name, kb.Phys)
	}
	tw.Flush()

	if path, err := device.Discover(config.DefaultConfig().Device.Name); err == nil {
		fmt.Fprintf(stdout, "\nAuto-detect would use: %s\n", path)
	}
	return exitOK
}

func cmdKeys(stdout io.Writer) int {
	fmt.Fprintln(stdout, "Named keys (write as <name> or Key.name):")
	printColumns(stdout, keycode.Names())
	fmt.Fprintln(stdout, "\nSingle characters:")
	fmt.Fprintf(stdout, "  %s\n", strings.Join(keycode.Symbols(), " "))
	fmt.Fprintln(stdout, "\nMouse buttons:")
	fmt.Fprintf(stdout, "  %s\n", strings.Join(keycode.ButtonNames(), " "))
	return exitOK
}

func printColumns(w io.Writer, items []string) {
	const perRow = 6
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, item := range items {
		sep := "\t"
		if (i+1)%perRow == 0 || i == len(items)-1 {
			sep = "\n"
		}
		fmt.Fprintf(tw, "  %s%s", item, sep)
	}
	tw.Flush()
}

// newLogger builds the process logger from the [logging] table.
func newLogger(lc config.LoggingConfig, verbose bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logging.LevelDebug
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = lc.Output
	if lc.FilePath != "" {
		cfg.FilePath = lc.FilePath
	}
	cfg.MaxSize = int64(lc.MaxSizeMB)
	cfg.MaxBackups = lc.MaxBackups
	cfg.MaxAge = lc.MaxAgeDays
	cfg.Compress = lc.Compress
	return logging.New(cfg)
}
