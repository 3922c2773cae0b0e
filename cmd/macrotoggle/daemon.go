package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"macrotoggle/internal/controller"
	"macrotoggle/internal/device"
	"macrotoggle/internal/ipc"
	"macrotoggle/internal/keycode"
	"macrotoggle/internal/logging"
	"macrotoggle/internal/macro"
	"macrotoggle/internal/monitor"
	"macrotoggle/internal/notify"
	"macrotoggle/internal/output"
)

func cmdRun(args []string, stderr io.Writer) int {
	var dryRun, verbose bool
	path, err := loadFlags("run", args, stderr, func(fs *flag.FlagSet) {
		fs.BoolVar(&dryRun, "dry-run", false, "Log synthesized input instead of writing to /dev/uinput")
		fs.BoolVar(&verbose, "v", false, "Debug logging")
	})
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

	log, err := newLogger(l.cfg.Logging, verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error: logging: %v\n", err)
		return exitConfig
	}
	defer log.Close()
	logging.SetDefault(log)

	for _, w := range l.warnings() {
		log.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	if err := daemon(context.Background(), l, dryRun, log); err != nil {
		log.Error("fatal", "error", err)
		if errors.Is(err, os.ErrPermission) {
			fmt.Fprintln(stderr, "Hint: reading input devices needs the input group; /dev/uinput needs write access.")
		}
		return exitFailure
	}
	return exitOK
}

// daemon wires the devices to the controller and runs until quit or a fatal
// error.
func daemon(ctx context.Context, l *loaded, dryRun bool, log *logging.Logger) error {
	cfg := l.cfg

	path := cfg.InputDevice
	if path != "" {
		if cfg.Device.WaitTimeoutSec > 0 {
			log.Info("waiting for input device", "path", path, "timeout", cfg.Device.WaitTimeout())
		}
		if err := device.WaitFor(ctx, path, cfg.Device.WaitTimeout()); err != nil {
			return fmt.Errorf("wait for %s: %w", path, err)
		}
	} else {
		var err error
		path, err = device.Discover(cfg.Device.Name)
		if err != nil {
			return err
		}
		log.Info("auto-detected keyboard", "path", path)
	}

	kbd, err := device.OpenKeyboard(path, cfg.Grab)
	if err != nil {
		return err
	}
	defer kbd.Close()

	var sink output.Sink
	if dryRun {
		sink = output.NewLogSink(log.Component("output"))
	} else {
		keys := append(keycode.KeyCodes(), keycode.ButtonCodes()...)
		virt, err := device.CreateVirtual(device.VirtualOptions{Name: cfg.Device.Name, Keys: keys})
		if err != nil {
			return err
		}
		defer virt.Close()
		sink = virt
	}

	synth := output.New(sink, output.Options{
		TapDelay:      cfg.Timing.TapDelay(),
		ClickInterval: cfg.Timing.ClickInterval(),
		Logger:        log.Component("output"),
	})

	ctrl := controller.New(synth, controller.Options{
		Program: l.program,
		Engine: macro.Options{
			PollQuantum: cfg.Timing.PollQuantum(),
			Logger:      log.Component("engine"),
		},
		ExitOnComplete: cfg.ExitOnComplete,
		Logger:         log.Component("controller"),
	})

	if cfg.Notify.Enabled {
		n, err := notify.ConnectDBus("macrotoggle")
		if err != nil {
			log.Warn("desktop notifications disabled", "error", err)
		} else {
			d := notify.NewDispatcher(n, log.Component("notify"))
			defer d.Close()
			ctrl.OnTransition(d.Observe)
		}
	}

	if cfg.Control.Enabled {
		srvCfg := ipc.DefaultServerConfig(cfg.Control.Socket)
		srvCfg.Logger = log.Component("ipc")
		srv := ipc.NewServer(srvCfg, &controlHandler{ctrl: ctrl, l: l, device: path, started: time.Now()})
		if err := srv.Start(); err != nil {
			if errors.Is(err, ipc.ErrAlreadyRunning) {
				return err
			}
			log.Warn("control socket disabled", "error", err)
		} else {
			defer srv.Stop()
			log.Info("control socket listening", "path", srv.SocketPath())
		}
	}

	mon := monitor.New(kbd, ctrl, monitor.Options{
		Trigger: l.trigger,
		Quit:    l.quit,
		Logger:  log.Component("monitor"),
	})

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  logging.DefaultCrashDir(),
		Version:   version,
		Component: "macrotoggle",
		Logger:    log.Logger,
		OnCrash: func(logging.CrashReport) {
			if _, err := synth.ReleaseAll(); err != nil {
				log.Error("release after crash", "error", err)
			}
		},
	})
	pruneCrashReports(crash, cfg.Logging.MaxAgeDays, log.Logger)

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		err := crash.Run(map[string]any{"goroutine": "monitor"}, func() error {
			return mon.Run(monCtx)
		})
		if err != nil {
			ctrl.Fail(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("signal received", "signal", sig.String())
			ctrl.QuitPressed()
		case <-monCtx.Done():
		}
	}()

	log.Info("ready",
		"device", path,
		"grab", cfg.Grab,
		"trigger", l.trigger.String(),
		"quit", l.quit.String(),
		"steps", len(l.program.Steps),
		"loop", l.program.Loop,
		"dry_run", dryRun,
	)

	err = crash.Run(map[string]any{"goroutine": "controller"}, func() error {
		return ctrl.Run(ctx)
	})

	stopMonitor()
	<-monDone
	log.Info("exiting")
	return err
}

// pruneCrashReports removes crash reports older than the log retention and
// reports how many are left from earlier runs.
func pruneCrashReports(crash *logging.CrashHandler, maxAgeDays int, log *slog.Logger) int {
	if maxAgeDays > 0 {
		if err := crash.CleanupOld(time.Duration(maxAgeDays) * 24 * time.Hour); err != nil {
			log.Warn("prune crash reports", "error", err)
		}
	}

	reports, err := crash.Reports()
	if err != nil {
		log.Warn("read crash reports", "error", err)
		return 0
	}
	if len(reports) > 0 {
		latest := reports[len(reports)-1]
		log.Warn("crash reports from earlier runs",
			"count", len(reports),
			"latest", latest.Timestamp,
			"panic", latest.PanicValue,
		)
	}
	return len(reports)
}
