package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/editor"
	"github.com/livetemplate/resultplay/internal/security"
	"github.com/livetemplate/resultplay/internal/session"
)

// The default CheckOrigin rejects cross-origin pages.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const (
	writeTimeout     = 10 * time.Second
	clipboardTimeout = 5 * time.Second
	maxMessageSize   = maxRequestBodySize
	jobQueueSize     = 16
)

var errClipboardTimeout = errors.New("clipboard request timed out")

// MessageEnvelope is the frame exchanged with the playground client.
//
// Client to server: "edit" (editor.Snapshot), "run" (runMessage), "reset",
// "clipboard-result" (clipboardResult).
// Server to client: "init", "state", "location", "clipboard", "notice".
type MessageEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type runMessage struct {
	ID string `json:"id"`
	editor.Snapshot
}

type clipboardResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type initMessage struct {
	Session   string          `json:"session"`
	Text      string          `json:"text"`
	Language  string          `json:"language"`
	Theme     string          `json:"theme"`
	Param     string          `json:"param"`
	CanFormat bool            `json:"canFormat"`
	Actions   []editor.Action `json:"actions"`
}

type stateMessage struct {
	editor.Snapshot
	State session.State `json:"state"`
}

type locationMessage struct {
	Href string `json:"href"`
}

type clipboardRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type noticeMessage struct {
	session.Notice
	TTLMillis int64 `json:"ttl_ms"`
}

// wsSession connects one browser tab to its playground session. The read
// loop only decodes frames; edits and actions run in order on a single
// worker so that a save can wait for the browser's clipboard answer.
type wsSession struct {
	id      string
	conn    *websocket.Conn
	session *session.Session
	buffer  *editor.Buffer
	handler *PlaygroundHandler
	logger  *zap.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan error

	jobs     chan func(context.Context)
	lastSeen atomic.Int64
}

// ServeWS upgrades the request and runs a session until the tab goes away.
// The page address is passed as the "location" query parameter.
func (h *PlaygroundHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	location := h.location(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	ws := &wsSession{
		id:      id,
		conn:    conn,
		handler: h,
		logger:  h.logger.With(zap.String("session", id)),
		pending: make(map[string]chan error),
		jobs:    make(chan func(context.Context), jobQueueSize),
	}
	ws.touch()

	if !h.add(ws) {
		conn.Close()
		return
	}
	defer h.remove(ws)
	defer conn.Close()

	ws.run(h.ctx, location)
}

// location is the address the tab reported, or the playground address on
// this host when it is missing or points elsewhere.
func (h *PlaygroundHandler) location(r *http.Request) *url.URL {
	raw := r.URL.Query().Get("location")
	if raw != "" {
		loc, err := security.ParseLocation(raw, r.Host)
		if err == nil {
			return loc
		}
		h.logger.Debug("ignoring reported location", zap.Error(err))
	}
	return &url.URL{Scheme: requestScheme(r), Host: r.Host, Path: h.server.config.Playground.Path}
}

func (ws *wsSession) run(parent context.Context, location *url.URL) {
	h := ws.handler
	srv := h.server
	cfg := srv.config.Playground

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var clip session.Clipboard = ws
	if srv.clipboard != nil {
		clip = srv.clipboard
	}

	ws.session = session.New(ws.id, session.Options{
		Param:              cfg.QueryParam,
		NotifyDecodeErrors: cfg.NotifyDecodeErrors,
		Formatter:          srv.formatter,
		Clipboard:          clip,
		History:            session.HistoryFunc(ws.replaceLocation),
		Notifier:           session.NotifyFunc(ws.notify),
		Observer:           srv.metrics,
		Logger:             srv.logger.Named("session"),
	})
	defer ws.session.Dispose()

	text := ws.session.Initialize(ctx, location, srv.DefaultText())
	ws.buffer = editor.NewBuffer(text, cfg.Language, cfg.Theme)

	if err := ws.send("init", initMessage{
		Session:   ws.id,
		Text:      text,
		Language:  cfg.Language,
		Theme:     cfg.Theme,
		Param:     cfg.QueryParam,
		CanFormat: ws.session.CanFormat(),
		Actions:   h.actions(),
	}); err != nil {
		ws.logger.Debug("failed to send init", zap.Error(err))
		return
	}

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		ws.work(ctx)
	}()

	ws.readLoop(ctx)

	cancel()
	workers.Wait()
	ws.logger.Debug("session closed")
}

func (ws *wsSession) readLoop(ctx context.Context) {
	for {
		var env MessageEnvelope
		if err := ws.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		ws.touch()

		switch env.Type {
		case "edit":
			var snap editor.Snapshot
			if !ws.decode(env, &snap) {
				continue
			}
			ws.enqueue(ctx, func(context.Context) { ws.applyEdit(snap) })

		case "run":
			var msg runMessage
			if !ws.decode(env, &msg) {
				continue
			}
			ws.enqueue(ctx, func(ctx context.Context) {
				ws.applyEdit(msg.Snapshot)
				ws.runAction(ctx, msg.ID)
			})

		case "reset":
			ws.enqueue(ctx, func(ctx context.Context) { ws.runAction(ctx, session.ActionReset) })

		case "clipboard-result":
			var res clipboardResult
			if ws.decode(env, &res) {
				ws.resolveClipboard(res)
			}

		default:
			ws.logger.Debug("unknown message type", zap.String("type", env.Type))
		}
	}
}

func (ws *wsSession) decode(env MessageEnvelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		ws.logger.Debug("malformed message", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (ws *wsSession) enqueue(ctx context.Context, job func(context.Context)) {
	select {
	case ws.jobs <- job:
	case <-ctx.Done():
	}
}

func (ws *wsSession) work(ctx context.Context) {
	for {
		select {
		case job := <-ws.jobs:
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (ws *wsSession) applyEdit(snap editor.Snapshot) {
	ws.buffer.Update(snap.Text, snap.Cursor, snap.Selections)
	if err := ws.session.Edit(ws.buffer.Value()); err != nil {
		ws.logger.Debug("edit rejected", zap.Error(err))
	}
}

func (ws *wsSession) runAction(ctx context.Context, id string) {
	err := ws.handler.server.actions.Run(ctx, id, &session.ActionContext{
		Session: ws.session,
		Editor:  ws.buffer,
		Notify:  session.NotifyFunc(ws.notify),
	})
	if errors.Is(err, session.ErrUnknownAction) {
		ws.notify(ctx, session.NoticeFor(err))
	}
	if err != nil {
		ws.logger.Debug("action failed", zap.String("action", id), zap.Error(err))
	}

	if err := ws.send("state", stateMessage{
		Snapshot: ws.buffer.Snapshot(),
		State:    ws.session.State(),
	}); err != nil {
		ws.logger.Debug("failed to send state", zap.Error(err))
	}
}

// send writes one frame. Writes from the worker and from session callbacks
// are serialized here.
func (ws *wsSession) send(typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.conn.WriteJSON(MessageEnvelope{Type: typ, Data: data})
}

func (ws *wsSession) replaceLocation(_ context.Context, u *url.URL) {
	if err := ws.send("location", locationMessage{Href: u.String()}); err != nil {
		ws.logger.Debug("failed to send location", zap.Error(err))
	}
}

func (ws *wsSession) notify(_ context.Context, n session.Notice) {
	if err := ws.send("notice", noticeMessage{Notice: n, TTLMillis: n.TTL.Milliseconds()}); err != nil {
		ws.logger.Debug("failed to send notice", zap.Error(err))
	}
}

// WriteText asks the browser to copy text and waits for its answer.
func (ws *wsSession) WriteText(ctx context.Context, text string) error {
	id := uuid.NewString()
	result := make(chan error, 1)

	ws.pendingMu.Lock()
	ws.pending[id] = result
	ws.pendingMu.Unlock()
	defer func() {
		ws.pendingMu.Lock()
		delete(ws.pending, id)
		ws.pendingMu.Unlock()
	}()

	if err := ws.send("clipboard", clipboardRequest{ID: id, Text: text}); err != nil {
		return err
	}

	timer := time.NewTimer(clipboardTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errClipboardTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ws *wsSession) resolveClipboard(res clipboardResult) {
	ws.pendingMu.Lock()
	result, ok := ws.pending[res.ID]
	ws.pendingMu.Unlock()
	if !ok {
		return
	}

	var err error
	if !res.OK {
		msg := res.Error
		if msg == "" {
			msg = "clipboard write rejected"
		}
		err = errors.New(msg)
	}
	select {
	case result <- err:
	default:
	}
}

func (ws *wsSession) touch() {
	ws.lastSeen.Store(time.Now().UnixNano())
}

func (ws *wsSession) idleSince(cutoff time.Time) bool {
	return time.Unix(0, ws.lastSeen.Load()).Before(cutoff)
}
