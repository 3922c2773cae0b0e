package device

import (
	"context"
	"errors"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
P: Phys=PNP0C0C/button/input0
S: Sysfs=/devices/LNXSYSTM:00/LNXSYBUS:00/PNP0C0C:00/input/input0
U: Uniq=
H: Handlers=kbd event0
B: PROP=0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
P: Phys=usb-0000:00:14.0-2/input0
S: Sysfs=/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/0003:046D:C52B.0001/input/input3
U: Uniq=
H: Handlers=sysrq kbd leds event3
B: PROP=0
B: EV=120013
B: KEY=1000000000007 ff9f207ac14057ff febeffdfffefffff fffffffffffffffe
B: MSC=10
B: LED=1f

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
P: Phys=usb-0000:00:14.0-2/input1
H: Handlers=mouse0 event4
B: PROP=0
B: EV=17
B: KEY=ffff0000 0 0 0 0
B: REL=1943

I: Bus=0006 Vendor=1d6b Product=0104 Version=0001
N: Name="macrotoggle-virtual"
P: Phys=
H: Handlers=sysrq kbd event7
B: KEY=1000000000007 ff9f207ac14057ff febeffdfffefffff fffffffffffffffe`

func TestParseInputDevices(t *testing.T) {
	if bits.UintSize != 64 {
		t.Skip("sample bitmap uses 64-bit words")
	}

	devices, err := parseInputDevices(strings.NewReader(sampleDevices))
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "Logitech USB Receiver", devices[0].Name)
	assert.Equal(t, "usb-0000:00:14.0-2/input0", devices[0].Phys)
	assert.Equal(t, "/dev/input/event3", devices[0].Path)

	// No trailing blank line: the last block is still flushed.
	assert.Equal(t, "macrotoggle-virtual", devices[1].Name)
	assert.Equal(t, "/dev/input/event7", devices[1].Path)
}

func TestHasKeyBit(t *testing.T) {
	if bits.UintSize != 64 {
		t.Skip("test words are 64-bit")
	}

	words := []string{"1", "40000000"}
	assert.True(t, hasKeyBit(words, 30))
	assert.False(t, hasKeyBit(words, 29))
	assert.True(t, hasKeyBit(words, 64))
	assert.False(t, hasKeyBit(words, 200))
	assert.False(t, hasKeyBit([]string{"zz"}, 1))
	assert.False(t, hasKeyBit(nil, 0))
}

func TestErrorUnwrap(t *testing.T) {
	err := &Error{Op: "open", Path: "/dev/input/event3", Err: os.ErrPermission}
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Contains(t, err.Error(), "/dev/input/event3")
}

func TestWaitForExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event0")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	require.NoError(t, WaitFor(context.Background(), path, time.Second))
}

func TestWaitForCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "by-id", "usb-kbd-event-kbd")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Mkdir(filepath.Join(dir, "by-id"), 0700)
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, nil, 0600)
	}()

	require.NoError(t, WaitFor(context.Background(), path, 5*time.Second))
}

func TestWaitForTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never")

	err := WaitFor(context.Background(), path, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
