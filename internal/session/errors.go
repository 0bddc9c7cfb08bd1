package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations called before Initialize.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrDisposed is returned by operations called after Dispose.
	ErrDisposed = errors.New("session disposed")
	// ErrUnknownAction is returned when running an action id nobody registered.
	ErrUnknownAction = errors.New("unknown action")
)

// ClipboardError reports a rejected clipboard write. The location has already
// been updated when it is returned.
type ClipboardError struct {
	Link string
	Err  error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy link to clipboard: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}
