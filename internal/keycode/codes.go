// Package keycode maps textual key tokens to Linux input key codes and
// matches hotkey specifications against a set of held keys.
//
// Codes are the physical US-layout codes from linux/input-event-codes.h, so
// a token always resolves to the same key position regardless of the
// keyboard layout configured in the desktop session.
package keycode

// Linux input key codes (KEY_*).
const (
	KeyEsc        uint16 = 1
	Key1          uint16 = 2
	Key2          uint16 = 3
	Key3          uint16 = 4
	Key4          uint16 = 5
	Key5          uint16 = 6
	Key6          uint16 = 7
	Key7          uint16 = 8
	Key8          uint16 = 9
	Key9          uint16 = 10
	Key0          uint16 = 11
	KeyMinus      uint16 = 12
	KeyEqual      uint16 = 13
	KeyBackspace  uint16 = 14
	KeyTab        uint16 = 15
	KeyQ          uint16 = 16
	KeyW          uint16 = 17
	KeyE          uint16 = 18
	KeyR          uint16 = 19
	KeyT          uint16 = 20
	KeyY          uint16 = 21
	KeyU          uint16 = 22
	KeyI          uint16 = 23
	KeyO          uint16 = 24
	KeyP          uint16 = 25
	KeyLeftBrace  uint16 = 26
	KeyRightBrace uint16 = 27
	KeyEnter      uint16 = 28
	KeyLeftCtrl   uint16 = 29
	KeyA          uint16 = 30
	KeyS          uint16 = 31
	KeyD          uint16 = 32
	KeyF          uint16 = 33
	KeyG          uint16 = 34
	KeyH          uint16 = 35
	KeyJ          uint16 = 36
	KeyK          uint16 = 37
	KeyL          uint16 = 38
	KeySemicolon  uint16 = 39
	KeyApostrophe uint16 = 40
	KeyGrave      uint16 = 41
	KeyLeftShift  uint16 = 42
	KeyBackslash  uint16 = 43
	KeyZ          uint16 = 44
	KeyX          uint16 = 45
	KeyC          uint16 = 46
	KeyV          uint16 = 47
	KeyB          uint16 = 48
	KeyN          uint16 = 49
	KeyM          uint16 = 50
	KeyComma      uint16 = 51
	KeyDot        uint16 = 52
	KeySlash      uint16 = 53
	KeyRightShift uint16 = 54
	KeyLeftAlt    uint16 = 56
	KeySpace      uint16 = 57
	KeyCapsLock   uint16 = 58
	KeyF1         uint16 = 59
	KeyF10        uint16 = 68
	KeyNumLock    uint16 = 69
	KeyScrollLock uint16 = 70
	KeyF11        uint16 = 87
	KeyF12        uint16 = 88
	KeyRightCtrl  uint16 = 97
	KeySysRq      uint16 = 99
	KeyRightAlt   uint16 = 100
	KeyHome       uint16 = 102
	KeyUp         uint16 = 103
	KeyPageUp     uint16 = 104
	KeyLeft       uint16 = 105
	KeyRight      uint16 = 106
	KeyEnd        uint16 = 107
	KeyDown       uint16 = 108
	KeyPageDown   uint16 = 109
	KeyInsert     uint16 = 110
	KeyDelete     uint16 = 111
	KeyPause      uint16 = 119
	KeyLeftMeta   uint16 = 125
	KeyRightMeta  uint16 = 126
	KeyCompose    uint16 = 127
	KeyF13        uint16 = 183
	KeyF24        uint16 = 194
)

// Linux input button codes (BTN_*).
const (
	BtnLeft   uint16 = 0x110
	BtnRight  uint16 = 0x111
	BtnMiddle uint16 = 0x112
	BtnSide   uint16 = 0x113
	BtnExtra  uint16 = 0x114
)

// functionKey returns the code for F1..F24, or 0 when n is out of range.
// The kernel numbering is split into three runs.
func functionKey(n int) uint16 {
	switch {
	case n >= 1 && n <= 10:
		return KeyF1 + uint16(n-1)
	case n == 11:
		return KeyF11
	case n == 12:
		return KeyF12
	case n >= 13 && n <= 24:
		return KeyF13 + uint16(n-13)
	}
	return 0
}
