package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

// Level classifies a notice for display.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient message shown to the user.
type Notice struct {
	Level   Level         `json:"level"`
	Kind    string        `json:"kind,omitempty"` // "share", "clipboard", "format", "decode"
	Message string        `json:"message"`
	TTL     time.Duration `json:"-"`
}

// Notifier delivers notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(ctx context.Context, n Notice)

// Notify calls f.
func (f NotifyFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

const defaultTTL = 4 * time.Second

// Info returns an informational notice.
func Info(kind, msg string) Notice {
	return Notice{Level: LevelInfo, Kind: kind, Message: msg, TTL: defaultTTL}
}

// NoticeFor turns an operation error into a user-facing notice.
func NoticeFor(err error) Notice {
	n := Notice{Level: LevelError, Message: err.Error(), TTL: 2 * defaultTTL}

	var (
		ce *ClipboardError
		fe *format.FormatError
		de *sharelink.DecodeError
	)
	switch {
	case errors.As(err, &ce):
		n.Kind = "clipboard"
		n.Message = "Link saved to the address bar, but copying it failed: " + ce.Err.Error()
	case errors.As(err, &fe):
		n.Kind = "format"
		if errors.Is(fe, format.ErrDisabled) {
			n.Level = LevelInfo
			n.Message = "Formatting is not configured"
		} else {
			n.Message = "Formatting failed: " + firstLine(fe.Stderr, fe.Err.Error())
		}
	case errors.As(err, &de):
		n.Kind = "decode"
		n.Message = "The shared link could not be read; showing the default example"
	}
	return n
}

// firstLine returns the first line of the first non-empty candidate.
func firstLine(candidates ...string) string {
	for _, s := range candidates {
		line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
		if line != "" {
			return line
		}
	}
	return ""
}
