package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"macrotoggle/internal/controller"
	"macrotoggle/internal/ipc"
)

// controlHandler serves control socket requests for a running daemon.
type controlHandler struct {
	ctrl    *controller.Controller
	l       *loaded
	device  string
	started time.Time
}

func (h *controlHandler) HandleMessage(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case ipc.MsgToggle:
		state := h.ctrl.State()
		h.ctrl.TriggerPressed()
		return ipc.NewResponse(ipc.MsgToggleResp, id, ipc.ControlResponse{Accepted: true, State: state.String()})

	case ipc.MsgQuit:
		state := h.ctrl.State()
		h.ctrl.QuitPressed()
		return ipc.NewResponse(ipc.MsgQuitResp, id, ipc.ControlResponse{Accepted: true, State: state.String()})

	case ipc.MsgStatusRequest:
		return ipc.NewResponse(ipc.MsgStatusResponse, id, ipc.StatusResponse{
			Version:   version,
			PID:       os.Getpid(),
			State:     h.ctrl.State().String(),
			Trigger:   h.l.trigger.String(),
			Quit:      h.l.quit.String(),
			Steps:     len(h.l.program.Steps),
			Loop:      h.l.program.Loop,
			Device:    h.device,
			StartedAt: h.started,
			Uptime:    time.Since(h.started).Round(time.Second),
		})

	default:
		return ipc.NewErrorMessage(id, ipc.ErrInvalidRequest, fmt.Sprintf("unsupported request %s", msg.Header.Type)), nil
	}
}

func cmdCtl(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	socket := fs.String("s", ipc.DefaultSocketPath(), "Control socket")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: macrotoggle ctl [-s socket] [--json] toggle|quit|status|ping")
		return exitFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ipc.Dial(ctx, *socket)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer client.Close()

	switch action := fs.Arg(0); action {
	case "toggle", "quit":
		var resp *ipc.ControlResponse
		if action == "toggle" {
			resp, err = client.Toggle(ctx)
		} else {
			resp, err = client.Quit(ctx)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "%s sent (was %s)\n", action, resp.State)

	case "status":
		status, err := client.Status(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		if *asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			enc.Encode(status)
			return exitOK
		}
		quit := status.Quit
		if quit == "" {
			quit = "(none)"
		}
		fmt.Fprintf(stdout, "State:   %s\n", status.State)
		fmt.Fprintf(stdout, "Trigger: %s\n", status.Trigger)
		fmt.Fprintf(stdout, "Quit:    %s\n", quit)
		fmt.Fprintf(stdout, "Steps:   %d (loop %t)\n", status.Steps, status.Loop)
		fmt.Fprintf(stdout, "Device:  %s\n", status.Device)
		fmt.Fprintf(stdout, "PID:     %d, up %s\n", status.PID, status.Uptime)

	case "ping":
		if err := client.Ping(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Fprintln(stdout, "pong")

	default:
		fmt.Fprintf(stderr, "Unknown ctl action: %s\n", action)
		return exitFailure
	}
	return exitOK
}
