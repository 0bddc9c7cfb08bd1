package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/resultplay"
	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// APIHandler serves the JSON API: formatting, share links and the snippet
// index. It is stateless; the playground session lives on the websocket.
type APIHandler struct {
	server *Server
	logger *zap.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(s *Server) *APIHandler {
	return &APIHandler{server: s, logger: s.logger.Named("api")}
}

type textRequest struct {
	Text string `json:"text"`
}

type formatResponse struct {
	Text      string `json:"text"`
	Formatter string `json:"formatter"`
}

type formatErrorResponse struct {
	Error     string `json:"error"`
	Formatter string `json:"formatter"`
	Stderr    string `json:"stderr,omitempty"`
}

type shareResponse struct {
	Token string `json:"token"`
	Link  string `json:"link"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

type snippetsResponse struct {
	Snippets []*resultplay.Snippet `json:"snippets"`
}

func (h *APIHandler) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return "", false
	}
	return req.Text, true
}

// Format handles POST /api/format.
func (h *APIHandler) Format(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}

	f := h.server.formatter
	out, err := f.Format(r.Context(), text)
	h.server.metrics.Formatted(err)
	if err != nil {
		resp := formatErrorResponse{Error: err.Error(), Formatter: f.Name()}
		status := http.StatusUnprocessableEntity

		var fe *format.FormatError
		if errors.As(err, &fe) {
			resp.Stderr = fe.Stderr
			if errors.Is(fe, format.ErrDisabled) {
				status = http.StatusNotImplemented
			}
		}
		h.logger.Debug("format failed", zap.Error(err))
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, formatResponse{Text: out, Formatter: f.Name()})
}

// Share handles POST /api/share. The link is built on public_url when it is
// configured, otherwise on the request's own host.
func (h *APIHandler) Share(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}

	token := sharelink.Encode(text)
	link := sharelink.WithToken(h.server.publicBase(r), h.server.config.Playground.QueryParam, token)
	writeJSON(w, http.StatusOK, shareResponse{Token: token, Link: link.String()})
}

// Decode handles GET /api/decode?token=... or ?link=...
func (h *APIHandler) Decode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	param := h.server.config.Playground.QueryParam

	token := q.Get("token")
	if link := q.Get("link"); token == "" && link != "" {
		u, err := url.Parse(link)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid link: "+err.Error())
			return
		}
		var found bool
		if token, found = sharelink.Token(u, param); !found {
			writeJSONError(w, http.StatusBadRequest, "link has no "+param+" parameter")
			return
		}
	}
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token or link is required")
		return
	}

	text, err := sharelink.Decode(token)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decodeResponse{Text: text})
}

// Snippets handles GET /api/snippets, optionally filtered by ?page=<id>.
func (h *APIHandler) Snippets(w http.ResponseWriter, r *http.Request) {
	pageFilter := strings.Trim(r.URL.Query().Get("page"), "/")

	snippets := make([]*resultplay.Snippet, 0)
	for _, route := range h.server.Routes() {
		if pageFilter != "" && route.Page.ID != pageFilter {
			continue
		}
		snippets = append(snippets, route.Page.Snippets...)
	}
	writeJSON(w, http.StatusOK, snippetsResponse{Snippets: snippets})
}
