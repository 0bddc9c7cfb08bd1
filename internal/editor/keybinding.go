package editor

import (
	"fmt"
	"slices"
	"strings"
)

// Modifier is a key modifier in the widget's chord notation.
type Modifier string

// CtrlCmd is Cmd on macOS and Ctrl elsewhere.
const (
	CtrlCmd Modifier = "CtrlCmd"
	Shift   Modifier = "Shift"
	Alt     Modifier = "Alt"
	WinCtrl Modifier = "WinCtrl"
)

// modifierOrder is the canonical order modifiers are printed in.
var modifierOrder = []Modifier{CtrlCmd, Shift, Alt, WinCtrl}

var namedKeys = map[string]bool{
	"Enter": true, "Escape": true, "Space": true, "Tab": true, "Backspace": true,
	"Delete": true, "Home": true, "End": true, "PageUp": true, "PageDown": true,
	"ArrowUp": true, "ArrowDown": true, "ArrowLeft": true, "ArrowRight": true,
	"Slash": true, "Backslash": true, "Period": true, "Comma": true, "Semicolon": true,
	"Quote": true, "Backquote": true, "Minus": true, "Equal": true,
	"BracketLeft": true, "BracketRight": true,
}

// Keybinding is a key chord such as "CtrlCmd+KeyS".
type Keybinding struct {
	Modifiers []Modifier // Canonical order, no duplicates
	Key       string     // KeyboardEvent.code, e.g. "KeyS", "Digit1", "F5"
}

// ParseKeybinding parses "Mod+Mod+Key". Modifiers may come in any order; the
// key must come last.
func ParseKeybinding(s string) (Keybinding, error) {
	parts := strings.Split(strings.TrimSpace(s), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return Keybinding{}, fmt.Errorf("keybinding %q: missing key", s)
	}

	key := parts[len(parts)-1]
	if !validKey(key) {
		return Keybinding{}, fmt.Errorf("keybinding %q: unknown key %q", s, key)
	}

	seen := make(map[Modifier]bool)
	for _, p := range parts[:len(parts)-1] {
		m := Modifier(p)
		if !slices.Contains(modifierOrder, m) {
			return Keybinding{}, fmt.Errorf("keybinding %q: unknown modifier %q", s, p)
		}
		if seen[m] {
			return Keybinding{}, fmt.Errorf("keybinding %q: duplicate modifier %q", s, p)
		}
		seen[m] = true
	}

	kb := Keybinding{Key: key}
	for _, m := range modifierOrder {
		if seen[m] {
			kb.Modifiers = append(kb.Modifiers, m)
		}
	}
	return kb, nil
}

// MustParseKeybinding is ParseKeybinding for constants.
func MustParseKeybinding(s string) Keybinding {
	kb, err := ParseKeybinding(s)
	if err != nil {
		panic(err)
	}
	return kb
}

func validKey(key string) bool {
	switch {
	case namedKeys[key]:
		return true
	case len(key) == 4 && strings.HasPrefix(key, "Key"):
		return key[3] >= 'A' && key[3] <= 'Z'
	case len(key) == 6 && strings.HasPrefix(key, "Digit"):
		return key[5] >= '0' && key[5] <= '9'
	case strings.HasPrefix(key, "F") && len(key) >= 2 && len(key) <= 3:
		n := 0
		for _, c := range key[1:] {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		return n >= 1 && n <= 12
	}
	return false
}

// String renders the chord in canonical form.
func (k Keybinding) String() string {
	parts := make([]string, 0, len(k.Modifiers)+1)
	for _, m := range k.Modifiers {
		parts = append(parts, string(m))
	}
	return strings.Join(append(parts, k.Key), "+")
}

// Equal reports whether both chords press the same keys.
func (k Keybinding) Equal(o Keybinding) bool {
	return k.Key == o.Key && slices.Equal(k.Modifiers, o.Modifiers)
}

// MarshalText implements encoding.TextMarshaler.
func (k Keybinding) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Keybinding) UnmarshalText(b []byte) error {
	kb, err := ParseKeybinding(string(b))
	if err != nil {
		return err
	}
	*k = kb
	return nil
}

// Action describes a command registered with the widget.
type Action struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Keybinding *Keybinding `json:"keybinding,omitempty"`
}
