package keycode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownToken is returned when a token is not in the key table.
var ErrUnknownToken = errors.New("unknown key token")

// ErrUnknownButton is returned when a mouse button name is not recognized.
var ErrUnknownButton = errors.New("unknown mouse button")

// Token is a canonical key identifier.
type Token struct {
	// Name is the canonical spelling, e.g. "ctrl", "f4" or "[".
	Name string

	// Code is the key code emitted when the token is synthesized.
	Code uint16

	// Alt is a second physical code that also satisfies the token when
	// matching held keys (the right-hand modifier). Zero when unused.
	Alt uint16
}

// Accepts reports whether a physical key code satisfies the token.
func (t Token) Accepts(code uint16) bool {
	return code == t.Code || (t.Alt != 0 && code == t.Alt)
}

// String renders the token in hotkey notation.
func (t Token) String() string {
	if len(t.Name) == 1 {
		return t.Name
	}
	return "<" + t.Name + ">"
}

// Parse resolves a textual token. Accepted forms are a single printable
// character ("e", "["), an angle-bracketed name ("<ctrl>", "<f4>") and the
// Key.name form ("Key.enter", "Key.shift_r").
func Parse(raw string) (Token, error) {
	if len(raw) == 1 {
		return parseChar(raw[0], raw)
	}

	s := strings.ToLower(strings.TrimSpace(raw))
	var name string
	switch {
	case len(s) > 2 && strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		name = s[1 : len(s)-1]
	case len(s) > 4 && strings.HasPrefix(s, "key."):
		name = s[4:]
	case len(s) == 1:
		return parseChar(s[0], raw)
	case s == "":
		return Token{}, fmt.Errorf("%w: empty token", ErrUnknownToken)
	default:
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, raw)
	}

	if len(name) == 1 {
		return parseChar(name[0], raw)
	}
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	tok, ok := named[name]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, raw)
	}
	return tok, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static tables.
func MustParse(raw string) Token {
	tok, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return tok
}

func parseChar(ch byte, raw string) (Token, error) {
	if ch >= 'A' && ch <= 'Z' {
		ch += 'a' - 'A'
	}
	code, ok := printable[ch]
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, raw)
	}
	name := string(ch)
	if ch == ' ' {
		name = "space"
	}
	return Token{Name: name, Code: code}, nil
}

// Button is a mouse button.
type Button struct {
	Name string
	Code uint16
}

func (b Button) String() string {
	return b.Name
}

var buttons = map[string]Button{
	"left":   {Name: "left", Code: BtnLeft},
	"right":  {Name: "right", Code: BtnRight},
	"middle": {Name: "middle", Code: BtnMiddle},
	"side":   {Name: "side", Code: BtnSide},
	"extra":  {Name: "extra", Code: BtnExtra},
}

// ParseButton resolves a mouse button name. An empty name means "left".
func ParseButton(raw string) (Button, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		name = "left"
	}
	b, ok := buttons[name]
	if !ok {
		return Button{}, fmt.Errorf("%w: %q", ErrUnknownButton, raw)
	}
	return b, nil
}

// ButtonCodes returns every mouse button code, sorted ascending.
func ButtonCodes() []uint16 {
	codes := make([]uint16, 0, len(buttons))
	for _, b := range buttons {
		codes = append(codes, b.Code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// ButtonNames returns the accepted button names, sorted.
func ButtonNames() []string {
	names := make([]string, 0, len(buttons))
	for name := range buttons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
