package keycode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptySpec is returned when a hotkey string contains no tokens.
var ErrEmptySpec = errors.New("empty hotkey")

// CodeSet is a set of key codes.
type CodeSet map[uint16]struct{}

// NewCodeSet returns a set holding codes.
func NewCodeSet(codes ...uint16) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add inserts code.
func (s CodeSet) Add(code uint16) { s[code] = struct{}{} }

// Remove deletes code.
func (s CodeSet) Remove(code uint16) { delete(s, code) }

// Has reports whether code is present.
func (s CodeSet) Has(code uint16) bool {
	_, ok := s[code]
	return ok
}

// Sorted returns the members in ascending order.
func (s CodeSet) Sorted() []uint16 {
	out := make([]uint16, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Held is the read side of a held-key set.
type Held interface {
	Has(code uint16) bool
}

// Spec is a hotkey: a set of tokens that must all be held at once.
type Spec struct {
	tokens []Token
}

// ParseSpec parses a hotkey such as "<ctrl>+<shift>+e". Segments are
// separated by '+', parsed independently, and duplicates are collapsed.
func ParseSpec(s string) (Spec, error) {
	if strings.TrimSpace(s) == "" {
		return Spec{}, ErrEmptySpec
	}

	var spec Spec
	seen := make(map[string]bool)
	for i, part := range strings.Split(s, "+") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			return Spec{}, fmt.Errorf("hotkey %q: segment %d is empty", s, i+1)
		}
		tok, err := Parse(part)
		if err != nil {
			return Spec{}, fmt.Errorf("hotkey %q: %w", s, err)
		}
		if seen[tok.Name] {
			continue
		}
		seen[tok.Name] = true
		spec.tokens = append(spec.tokens, tok)
	}
	return spec, nil
}

// MustParseSpec is like ParseSpec but panics on error.
func MustParseSpec(s string) Spec {
	spec, err := ParseSpec(s)
	if err != nil {
		panic(err)
	}
	return spec
}

// IsZero reports whether the spec holds no tokens (an unset hotkey).
func (s Spec) IsZero() bool { return len(s.tokens) == 0 }

// Tokens returns a copy of the spec's tokens in declaration order.
func (s Spec) Tokens() []Token {
	return append([]Token(nil), s.tokens...)
}

// Matches reports whether every token in the spec is satisfied by a code in
// held. Extra held keys do not affect the result. A zero spec never matches.
func (s Spec) Matches(held Held) bool {
	if len(s.tokens) == 0 {
		return false
	}
	for _, tok := range s.tokens {
		if !held.Has(tok.Code) && (tok.Alt == 0 || !held.Has(tok.Alt)) {
			return false
		}
	}
	return true
}

func (s Spec) String() string {
	parts := make([]string, len(s.tokens))
	for i, tok := range s.tokens {
		parts[i] = tok.String()
	}
	return strings.Join(parts, "+")
}
