// Package editor models the code editor widget the playground embeds.
//
// The widget itself runs in the browser. Buffer is its server-side mirror: the
// websocket handler applies the widget's edits to it, and session actions read
// and write it through the Editor interface exactly as they would the widget.
package editor

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"
)

// Position is a cursor offset counted in runes from the start of the buffer.
type Position int

// Selection is a range between an anchor and the head (where the caret sits).
// Head may come before Anchor for backwards selections.
type Selection struct {
	Anchor Position `json:"anchor"`
	Head   Position `json:"head"`
}

// Caret returns an empty selection at p.
func Caret(p Position) Selection {
	return Selection{Anchor: p, Head: p}
}

// Empty reports whether the selection is a bare caret.
func (s Selection) Empty() bool { return s.Anchor == s.Head }

// Start returns the lower bound of the range.
func (s Selection) Start() Position { return min(s.Anchor, s.Head) }

// End returns the upper bound of the range.
func (s Selection) End() Position { return max(s.Anchor, s.Head) }

// Within reports whether both ends lie in [0, length].
func (s Selection) Within(length int) bool {
	return s.Start() >= 0 && int(s.End()) <= length
}

// Editor is the surface of the editor widget that session actions use.
type Editor interface {
	Value() string
	SetValue(text string)
	Cursor() Position
	SetCursor(p Position)
	Selections() []Selection
	SetSelections(sels []Selection)
	Language() string
	Theme() string
}

// Buffer is an in-memory Editor. It is safe for concurrent use.
type Buffer struct {
	mu         sync.RWMutex
	text       string
	length     int // rune count of text
	cursor     Position
	selections []Selection
	language   string
	theme      string
}

// NewBuffer returns a buffer holding text with the caret at the start.
func NewBuffer(text, language, theme string) *Buffer {
	b := &Buffer{language: language, theme: theme}
	b.setText(text)
	return b
}

func (b *Buffer) setText(text string) {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	b.text = text
	b.length = utf8.RuneCountInString(text)
}

// Value returns the buffer content.
func (b *Buffer) Value() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Len returns the buffer length in runes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}

// SetValue replaces the content. Like the widget, it moves the caret to the
// start and drops the selections; use PreserveCursor to carry them over.
func (b *Buffer) SetValue(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setText(text)
	b.cursor = 0
	b.selections = nil
}

// Cursor returns the caret position.
func (b *Buffer) Cursor() Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}

// SetCursor moves the caret, clamped to the buffer.
func (b *Buffer) SetCursor(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = Clamp(p, b.length)
}

// Selections returns a copy of the current selections.
func (b *Buffer) Selections() []Selection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Selection(nil), b.selections...)
}

// SetSelections replaces the selections. Ranges outside the buffer are
// dropped.
func (b *Buffer) SetSelections(sels []Selection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	length := b.length
	b.selections = lo.Filter(sels, func(s Selection, _ int) bool {
		return s.Within(length)
	})
}

// Language returns the language id the widget highlights.
func (b *Buffer) Language() string { return b.language }

// Theme returns the widget theme.
func (b *Buffer) Theme() string { return b.theme }

// Update applies a full edit from the widget: new content plus where the
// caret and selections ended up.
func (b *Buffer) Update(text string, cursor Position, sels []Selection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setText(text)
	b.cursor = Clamp(cursor, b.length)
	length := b.length
	b.selections = lo.Filter(sels, func(s Selection, _ int) bool {
		return s.Within(length)
	})
}

// Snapshot is a point-in-time copy of the widget state.
type Snapshot struct {
	Text       string      `json:"text"`
	Cursor     Position    `json:"cursor"`
	Selections []Selection `json:"selections,omitempty"`
}

// Snapshot returns the current state.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Text:       b.text,
		Cursor:     b.cursor,
		Selections: append([]Selection(nil), b.selections...),
	}
}

// Clamp limits p to [0, length].
func Clamp(p Position, length int) Position {
	if p < 0 {
		return 0
	}
	if int(p) > length {
		return Position(length)
	}
	return p
}

// PreserveCursor carries a cursor and selections over to text. Offsets that
// still fit are kept as is; a cursor past the end moves to the end; a
// selection that no longer fits collapses to a caret at its clamped head.
// Duplicate carets produced by collapsing are merged.
func PreserveCursor(text string, cursor Position, sels []Selection) (Position, []Selection) {
	length := utf8.RuneCountInString(text)
	kept := lo.Map(sels, func(s Selection, _ int) Selection {
		if s.Within(length) {
			return s
		}
		return Caret(Clamp(s.Head, length))
	})
	return Clamp(cursor, length), lo.Uniq(kept)
}

// Replace sets ed's content to text and restores its cursor and selections
// as far as they remain valid.
func Replace(ed Editor, text string) {
	cursor, sels := PreserveCursor(text, ed.Cursor(), ed.Selections())
	ed.SetValue(text)
	ed.SetCursor(cursor)
	ed.SetSelections(sels)
}
