package session

import (
	"context"
	"errors"
	"sync"
)

// Clipboard writes text to the user's clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// ClipboardFunc adapts a function to Clipboard.
type ClipboardFunc func(ctx context.Context, text string) error

// WriteText calls f.
func (f ClipboardFunc) WriteText(ctx context.Context, text string) error { return f(ctx, text) }

// ErrNoClipboard is returned by NoClipboard.
var ErrNoClipboard = errors.New("clipboard unavailable")

// NoClipboard rejects every write.
var NoClipboard = ClipboardFunc(func(context.Context, string) error { return ErrNoClipboard })

// MemoryClipboard keeps the last written text. The CLI and tests use it.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

// WriteText stores text.
func (m *MemoryClipboard) WriteText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// Text returns the stored text.
func (m *MemoryClipboard) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}
