//go:build linux

package device

import (
	"os"
	"path/filepath"
	"sort"
)

const procInputDevices = "/proc/bus/input/devices"

// ListKeyboards returns the keyboards the kernel currently exposes.
func ListKeyboards() ([]KeyboardInfo, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, &Error{Op: "list", Path: procInputDevices, Err: err}
	}
	defer f.Close()

	devices, err := parseInputDevices(f)
	if err != nil {
		return nil, &Error{Op: "list", Path: procInputDevices, Err: err}
	}
	return devices, nil
}

// Discover picks a keyboard event node. Stable /dev/input/by-id/*-event-kbd
// links are preferred; otherwise the first keyboard listed in procfs whose
// name differs from exclude (normally our own virtual device) is used.
func Discover(exclude string) (string, error) {
	links, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
	sort.Strings(links)
	for _, link := range links {
		if _, err := os.Stat(link); err == nil {
			return link, nil
		}
	}

	devices, err := ListKeyboards()
	if err != nil {
		return "", err
	}
	for _, dev := range devices {
		if exclude != "" && dev.Name == exclude {
			continue
		}
		return dev.Path, nil
	}
	return "", ErrNotFound
}
