package keycode

import (
	"fmt"
	"sort"
)

// printable holds the single-character tokens. Letters are stored lower case.
var printable = map[byte]uint16{
	'a': KeyA, 'b': KeyB, 'c': KeyC, 'd': KeyD, 'e': KeyE, 'f': KeyF,
	'g': KeyG, 'h': KeyH, 'i': KeyI, 'j': KeyJ, 'k': KeyK, 'l': KeyL,
	'm': KeyM, 'n': KeyN, 'o': KeyO, 'p': KeyP, 'q': KeyQ, 'r': KeyR,
	's': KeyS, 't': KeyT, 'u': KeyU, 'v': KeyV, 'w': KeyW, 'x': KeyX,
	'y': KeyY, 'z': KeyZ,

	'1': Key1, '2': Key2, '3': Key3, '4': Key4, '5': Key5,
	'6': Key6, '7': Key7, '8': Key8, '9': Key9, '0': Key0,

	' ':  KeySpace,
	'`':  KeyGrave,
	'-':  KeyMinus,
	'=':  KeyEqual,
	'[':  KeyLeftBrace,
	']':  KeyRightBrace,
	'\\': KeyBackslash,
	';':  KeySemicolon,
	'\'': KeyApostrophe,
	',':  KeyComma,
	'.':  KeyDot,
	'/':  KeySlash,
}

// named holds the canonical named tokens. Modifiers without a side accept
// both physical keys when matching and emit the left one.
var named = map[string]Token{
	"ctrl":    {Name: "ctrl", Code: KeyLeftCtrl, Alt: KeyRightCtrl},
	"ctrl_l":  {Name: "ctrl_l", Code: KeyLeftCtrl},
	"ctrl_r":  {Name: "ctrl_r", Code: KeyRightCtrl},
	"shift":   {Name: "shift", Code: KeyLeftShift, Alt: KeyRightShift},
	"shift_l": {Name: "shift_l", Code: KeyLeftShift},
	"shift_r": {Name: "shift_r", Code: KeyRightShift},
	"alt":     {Name: "alt", Code: KeyLeftAlt, Alt: KeyRightAlt},
	"alt_l":   {Name: "alt_l", Code: KeyLeftAlt},
	"alt_r":   {Name: "alt_r", Code: KeyRightAlt},
	"meta":    {Name: "meta", Code: KeyLeftMeta, Alt: KeyRightMeta},
	"meta_l":  {Name: "meta_l", Code: KeyLeftMeta},
	"meta_r":  {Name: "meta_r", Code: KeyRightMeta},

	"enter":        {Name: "enter", Code: KeyEnter},
	"esc":          {Name: "esc", Code: KeyEsc},
	"tab":          {Name: "tab", Code: KeyTab},
	"space":        {Name: "space", Code: KeySpace},
	"backspace":    {Name: "backspace", Code: KeyBackspace},
	"delete":       {Name: "delete", Code: KeyDelete},
	"insert":       {Name: "insert", Code: KeyInsert},
	"home":         {Name: "home", Code: KeyHome},
	"end":          {Name: "end", Code: KeyEnd},
	"page_up":      {Name: "page_up", Code: KeyPageUp},
	"page_down":    {Name: "page_down", Code: KeyPageDown},
	"up":           {Name: "up", Code: KeyUp},
	"down":         {Name: "down", Code: KeyDown},
	"left":         {Name: "left", Code: KeyLeft},
	"right":        {Name: "right", Code: KeyRight},
	"caps_lock":    {Name: "caps_lock", Code: KeyCapsLock},
	"num_lock":     {Name: "num_lock", Code: KeyNumLock},
	"scroll_lock":  {Name: "scroll_lock", Code: KeyScrollLock},
	"print_screen": {Name: "print_screen", Code: KeySysRq},
	"pause":        {Name: "pause", Code: KeyPause},
	"menu":         {Name: "menu", Code: KeyCompose},
}

// aliases resolve alternative spellings to a canonical name.
var aliases = map[string]string{
	"control":   "ctrl",
	"control_l": "ctrl_l",
	"control_r": "ctrl_r",
	"super":     "meta",
	"win":       "meta",
	"cmd":       "meta",
	"super_l":   "meta_l",
	"super_r":   "meta_r",
	"alt_gr":    "alt_r",
	"return":    "enter",
	"escape":    "esc",
	"del":       "delete",
	"pageup":    "page_up",
	"pagedown":  "page_down",
	"capslock":  "caps_lock",
	"numlock":   "num_lock",
	"print":     "print_screen",
}

func init() {
	for n := 1; n <= 24; n++ {
		name := fmt.Sprintf("f%d", n)
		named[name] = Token{Name: name, Code: functionKey(n)}
	}
}

// KeyCodes returns every key code a token can emit, sorted ascending.
func KeyCodes() []uint16 {
	set := make(CodeSet)
	for _, code := range printable {
		set.Add(code)
	}
	for _, tok := range named {
		set.Add(tok.Code)
		if tok.Alt != 0 {
			set.Add(tok.Alt)
		}
	}
	return set.Sorted()
}

// Names returns the canonical named tokens, sorted.
func Names() []string {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Symbols returns the accepted single-character tokens, sorted.
func Symbols() []string {
	out := make([]string, 0, len(printable))
	for ch := range printable {
		out = append(out, string(ch))
	}
	sort.Strings(out)
	return out
}
