package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/editor"
	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/session"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

const (
	// sessionIdleTimeout closes tabs that have sent nothing for this long.
	sessionIdleTimeout = time.Hour
	cleanupInterval    = 5 * time.Minute
)

type playgroundPageData struct {
	SiteTitle string
	Title     string
	Nav       []NavItem
	Text      string
	Language  string
	Theme     string
	WSPath    string
	Actions   []editor.Action
}

// PlaygroundHandler serves the playground page and owns one session per
// connected tab.
type PlaygroundHandler struct {
	server *Server
	logger *zap.Logger
	ctx    context.Context

	mu       sync.RWMutex
	sessions map[string]*wsSession
	closed   bool
	wg       sync.WaitGroup
}

// NewPlaygroundHandler creates a playground handler. Its background work
// stops when ctx is cancelled.
func NewPlaygroundHandler(ctx context.Context, s *Server) *PlaygroundHandler {
	h := &PlaygroundHandler{
		server:   s,
		logger:   s.logger.Named("playground"),
		ctx:      ctx,
		sessions: make(map[string]*wsSession),
	}

	h.wg.Add(1)
	go h.cleanupLoop(ctx)

	return h
}

// cleanupLoop disconnects idle sessions every few minutes.
func (h *PlaygroundHandler) cleanupLoop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.closeIdle(time.Now().Add(-sessionIdleTimeout))
		case <-ctx.Done():
			return
		}
	}
}

func (h *PlaygroundHandler) closeIdle(cutoff time.Time) int {
	h.mu.RLock()
	idle := lo.Filter(lo.Values(h.sessions), func(ws *wsSession, _ int) bool {
		return ws.idleSince(cutoff)
	})
	h.mu.RUnlock()

	for _, ws := range idle {
		h.logger.Debug("closing idle session", zap.String("session", ws.id))
		ws.conn.Close()
	}
	return len(idle)
}

func (h *PlaygroundHandler) add(ws *wsSession) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[ws.id] = ws
	h.wg.Add(1)
	return true
}

func (h *PlaygroundHandler) remove(ws *wsSession) {
	h.mu.Lock()
	delete(h.sessions, ws.id)
	h.mu.Unlock()
	h.wg.Done()
}

// SessionCount returns the number of connected sessions.
func (h *PlaygroundHandler) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and waits for them to be disposed.
func (h *PlaygroundHandler) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := lo.Values(h.sessions)
	h.mu.Unlock()

	for _, ws := range sessions {
		ws.conn.Close()
	}
	h.wg.Wait()
}

// actions lists what the toolbar offers. Format Document is hidden when no
// formatter is configured; Format and Save then only saves.
func (h *PlaygroundHandler) actions() []editor.Action {
	all := h.server.actions.Actions()
	if _, none := h.server.formatter.(format.None); !none {
		return all
	}
	return lo.Reject(all, func(a editor.Action, _ int) bool {
		return a.ID == session.ActionFormat
	})
}

// ServePage renders the playground shell with the buffer the address
// carries, so the page is usable before the websocket connects.
func (h *PlaygroundHandler) ServePage(w http.ResponseWriter, r *http.Request) {
	cfg := h.server.config.Playground

	text, ok, err := sharelink.TextFrom(r.URL, cfg.QueryParam)
	if err != nil {
		h.logger.Debug("share token did not decode", zap.Error(err))
	}
	if !ok || err != nil {
		text = h.server.DefaultText()
	}

	h.server.render(w, "playground.html", playgroundPageData{
		SiteTitle: h.server.config.Title,
		Title:     "Playground",
		Nav:       h.server.nav(cfg.Path),
		Text:      text,
		Language:  cfg.Language,
		Theme:     cfg.Theme,
		WSPath:    cfg.Path + "/ws",
		Actions:   h.actions(),
	})
}
