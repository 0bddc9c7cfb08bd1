// Package session implements the playground session controller.
//
// A Session owns one source buffer and the address it is shared under. It is
// created by whoever hosts the editor (the websocket handler for a browser
// tab, or the desktop app), initialized from the page address and disposed
// when the host goes away. All methods are safe for concurrent use; callers
// that need a strict order of operations serialize them themselves.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

// State is the lifecycle state of a session.
type State int

const (
	Uninitialized State = iota
	Loaded
	Editing
	Saved
	Reset
	Formatted
	Disposed
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Loaded:        "loaded",
	Editing:       "editing",
	Saved:         "saved",
	Reset:         "reset",
	Formatted:     "formatted",
	Disposed:      "disposed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// History replaces the address shown by the host without navigating.
type History interface {
	Replace(ctx context.Context, u *url.URL)
}

// HistoryFunc adapts a function to History.
type HistoryFunc func(ctx context.Context, u *url.URL)

// Replace calls f.
func (f HistoryFunc) Replace(ctx context.Context, u *url.URL) { f(ctx, u) }

// Observer is told about session outcomes. The server feeds it into metrics.
type Observer interface {
	Initialized(fromLink bool)
	DecodeFailed()
	Saved()
	ClipboardFailed()
	Formatted(err error)
	Disposed()
}

type nopObserver struct{}

func (nopObserver) Initialized(bool) {}
func (nopObserver) DecodeFailed()    {}
func (nopObserver) Saved()           {}
func (nopObserver) ClipboardFailed() {}
func (nopObserver) Formatted(error)  {}
func (nopObserver) Disposed()        {}

// Options wires a session to its collaborators. Nil fields get inert
// defaults.
type Options struct {
	Param              string // Query parameter holding the token. Default "code"
	NotifyDecodeErrors bool   // Show a notice when the incoming link is unreadable
	Formatter          format.Formatter
	Clipboard          Clipboard
	History            History
	Notifier           Notifier
	Observer           Observer
	Logger             *zap.Logger
}

// Session is one playground buffer and the address it is shared under.
type Session struct {
	id   string
	opts Options

	mu          sync.Mutex
	state       State
	location    *url.URL
	defaultText string
	sourceText  string
}

// New returns an uninitialized session.
func New(id string, opts Options) *Session {
	if opts.Param == "" {
		opts.Param = sharelink.DefaultParam
	}
	if opts.Formatter == nil {
		opts.Formatter = format.None{}
	}
	if opts.Clipboard == nil {
		opts.Clipboard = NoClipboard
	}
	if opts.History == nil {
		opts.History = HistoryFunc(func(context.Context, *url.URL) {})
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifyFunc(func(context.Context, Notice) {})
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.With(zap.String("session", id))
	return &Session{id: id, opts: opts}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Param returns the query parameter the session stores its token in.
func (s *Session) Param() string { return s.opts.Param }

// CanFormat reports whether a formatter is configured.
func (s *Session) CanFormat() bool {
	_, none := s.opts.Formatter.(format.None)
	return !none
}

// Initialize loads the buffer from the share token in location, or from
// fallback when there is none or it does not decode. fallback also becomes
// the text Reset restores. Initialize never fails: an unreadable token is
// logged and, if configured, reported as a notice.
func (s *Session) Initialize(ctx context.Context, location *url.URL, fallback string) string {
	fallback = validText(fallback)

	text, ok, err := sharelink.TextFrom(location, s.opts.Param)
	fromLink := ok && err == nil
	if err != nil {
		s.opts.Logger.Warn("share token did not decode, using default text",
			zap.Error(err))
		s.opts.Observer.DecodeFailed()
		if s.opts.NotifyDecodeErrors {
			s.opts.Notifier.Notify(ctx, NoticeFor(err))
		}
	}
	if !fromLink {
		text = fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disposed {
		return fallback
	}
	s.location = cloneURL(location)
	s.defaultText = fallback
	s.sourceText = text
	s.state = Loaded

	s.opts.Logger.Debug("session initialized",
		zap.Bool("from_link", fromLink),
		zap.Int("length", len(text)))
	s.opts.Observer.Initialized(fromLink)
	return text
}

// Edit records new buffer content typed by the user.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.sourceText = validText(text)
	s.state = Editing
	return nil
}

// Save stores text in the location's query, replacing any previous token,
// and returns the resulting address. It then copies the address to the
// clipboard; if that fails the returned error is a *ClipboardError and the
// location keeps the new token.
func (s *Session) Save(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.sourceText = validText(text)
	s.location = sharelink.WithToken(s.location, s.opts.Param, sharelink.Encode(s.sourceText))
	s.state = Saved
	location := cloneURL(s.location)
	s.mu.Unlock()

	link := location.String()
	s.opts.History.Replace(ctx, location)
	s.opts.Observer.Saved()
	s.opts.Logger.Debug("share link saved", zap.Int("link_length", len(link)))

	if err := s.opts.Clipboard.WriteText(ctx, link); err != nil {
		s.opts.Logger.Info("clipboard write rejected", zap.Error(err))
		s.opts.Observer.ClipboardFailed()
		return link, &ClipboardError{Link: link, Err: err}
	}
	return link, nil
}

// Reset restores the default text and drops the token from the location.
// Other query parameters are left alone.
func (s *Session) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.sourceText = s.defaultText
	s.location = sharelink.WithoutToken(s.location, s.opts.Param)
	s.state = Reset
	text := s.sourceText
	location := cloneURL(s.location)
	s.mu.Unlock()

	s.opts.History.Replace(ctx, location)
	return text, nil
}

// Format runs text through the formatter. On success the buffer becomes
// the formatted text; on failure the buffer is left as it was and the error
// is a *format.FormatError.
//
// The session is not locked while the formatter runs, so an Edit that lands
// in the meantime is overwritten by the result.
func (s *Session) Format(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	out, err := s.opts.Formatter.Format(ctx, validText(text))
	s.opts.Observer.Formatted(err)
	if err != nil {
		var fe *format.FormatError
		if !errors.As(err, &fe) {
			err = &format.FormatError{Formatter: s.opts.Formatter.Name(), Err: err}
		}
		s.opts.Logger.Info("format failed", zap.Error(err))
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disposed {
		return "", ErrDisposed
	}
	s.sourceText = out
	s.state = Formatted
	return out, nil
}

// Dispose ends the session and drops its buffer. Further operations fail
// with ErrDisposed. Dispose is idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disposed {
		return
	}
	s.state = Disposed
	s.sourceText = ""
	s.defaultText = ""
	s.opts.Observer.Disposed()
	s.opts.Logger.Debug("session disposed")
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the current buffer.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceText
}

// DefaultText returns the text Reset restores.
func (s *Session) DefaultText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultText
}

// Location returns a copy of the current address.
func (s *Session) Location() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneURL(s.location)
}

// ShareLink returns the address the current buffer would be shared under.
// It does not touch the location.
func (s *Session) ShareLink() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return "", err
	}
	return sharelink.Link(s.location, s.opts.Param, s.sourceText), nil
}

// usable must be called with mu held.
func (s *Session) usable() error {
	switch s.state {
	case Uninitialized:
		return ErrNotInitialized
	case Disposed:
		return ErrDisposed
	}
	return nil
}

func validText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "�")
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
