package device

import (
	"bufio"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"macrotoggle/internal/keycode"
)

// KeyboardInfo describes a keyboard found in /proc/bus/input/devices.
type KeyboardInfo struct {
	Name string
	Phys string
	Path string // /dev/input/eventN
}

// parseInputDevices reads the /proc/bus/input/devices format and returns the
// devices that look like keyboards: an event handler plus KEY_A and
// KEY_LEFTCTRL in the key capability bitmap.
func parseInputDevices(r io.Reader) ([]KeyboardInfo, error) {
	var (
		out     []KeyboardInfo
		current KeyboardInfo
		keys    []string
	)

	flush := func() {
		if current.Path != "" && hasKeyBit(keys, keycode.KeyA) && hasKeyBit(keys, keycode.KeyLeftCtrl) {
			out = append(out, current)
		}
		current = KeyboardInfo{}
		keys = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N: Name="):
			current.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "P: Phys="):
			current.Phys = strings.TrimPrefix(line, "P: Phys=")
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					current.Path = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			keys = strings.Fields(strings.TrimPrefix(line, "B: KEY="))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return out, nil
}

// hasKeyBit reports whether code is set in a kernel capability bitmap. The
// bitmap is printed as space separated hex longs, most significant first.
func hasKeyBit(words []string, code uint16) bool {
	width := uint16(bits.UintSize)
	idx := len(words) - 1 - int(code/width)
	if idx < 0 {
		return false
	}
	w, err := strconv.ParseUint(words[idx], 16, 64)
	if err != nil {
		return false
	}
	return w&(1<<(code%width)) != 0
}
