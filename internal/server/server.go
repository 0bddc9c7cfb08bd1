// Package server hosts the documentation site and the playground: page
// rendering, the per-tab websocket session transport, the JSON API and
// live reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay"
	"github.com/livetemplate/resultplay/internal/assets"
	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/session"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

// Route is a discovered documentation page.
type Route struct {
	Pattern  string // URL pattern (e.g., "/docs/guide/chaining")
	FilePath string // Relative path to .md file
	Page     *resultplay.Page
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFormatter overrides the formatter built from the configuration.
func WithFormatter(f format.Formatter) Option {
	return func(s *Server) { s.formatter = f }
}

// WithClipboard makes sessions write share links to c instead of asking
// the browser. The desktop shell passes the native clipboard.
func WithClipboard(c session.Clipboard) Option {
	return func(s *Server) { s.clipboard = c }
}

// Server serves the docs site and the playground.
type Server struct {
	rootDir   string
	config    *config.Config
	logger    *zap.Logger
	formatter format.Formatter
	clipboard session.Clipboard
	actions   *session.Registry
	metrics   *Metrics
	templates *template.Template
	docs      *docRenderer

	mu          sync.RWMutex
	routes      []*Route
	defaultText string

	connMu      sync.Mutex
	connections map[*websocket.Conn]bool

	playground *PlaygroundHandler
	watcher    *Watcher
	router     chi.Router

	cancel      context.CancelFunc
	limiterDone <-chan struct{}
	closeOnce   sync.Once
}

// New creates a server for the site in rootDir and discovers its pages.
func New(rootDir string, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		rootDir:     rootDir,
		config:      cfg,
		logger:      zap.NewNop(),
		connections: make(map[*websocket.Conn]bool),
		metrics:     NewMetrics(),
		docs:        newDocRenderer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.defaultText, err = cfg.ResolveDefaultText(rootDir); err != nil {
		return nil, err
	}
	if s.formatter == nil {
		if s.formatter, err = format.New(cfg.Formatter, rootDir, s.logger); err != nil {
			return nil, err
		}
	}
	if s.actions, err = session.DefaultRegistry(cfg.Playground.Keybindings); err != nil {
		return nil, fmt.Errorf("invalid keybindings: %w", err)
	}
	if s.templates, err = assets.Templates(nil); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.playground = NewPlaygroundHandler(ctx, s)

	if err := s.Discover(); err != nil {
		s.Close(context.Background())
		return nil, err
	}
	s.router = s.routesFor(ctx)
	return s, nil
}

func (s *Server) routesFor(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())
	r.Use(compressionMiddleware)

	r.Get("/", s.serveIndex)
	r.Get(s.config.Playground.Path, s.playground.ServePage)
	r.Get(s.config.Playground.Path+"/ws", s.playground.ServeWS)
	r.Get("/docs/ws", s.serveReloadWS)
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", s.serveDoc)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets.ClientFS()))))
	r.Handle("/metrics", s.metrics.Handler())

	limit, done := RateLimitMiddleware(ctx, RateLimitOptionsFrom(s.config.API, s.logger.Named("ratelimit")))
	s.limiterDone = done

	api := NewAPIHandler(s)
	r.Route("/api", func(r chi.Router) {
		r.Use(CORSMiddleware(s.config.API.GetCORSOrigins()))
		r.Use(limit)
		r.Post("/format", api.Format)
		r.Post("/share", api.Share)
		r.Get("/decode", api.Decode)
		r.Get("/snippets", api.Snippets)
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config { return s.config }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// docsDir is the absolute directory pages are discovered in.
func (s *Server) docsDir() string {
	if filepath.IsAbs(s.config.Docs.Dir) {
		return s.config.Docs.Dir
	}
	return filepath.Join(s.rootDir, s.config.Docs.Dir)
}

// Discover scans the docs directory for .md files and builds the route table.
// A missing docs directory leaves the site empty.
func (s *Server) Discover() error {
	dir := s.docsDir()
	routes := make([]*Route, 0)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}

		if d.IsDir() {
			// Skip directories starting with _ or .
			name := d.Name()
			if path != dir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".md" || strings.HasPrefix(d.Name(), "_") {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		pattern := mdToPattern(relPath)
		page, err := resultplay.ParseFile(path, resultplay.ParseOptions{
			DefaultLanguage: s.config.Playground.Language,
			PageID:          pageID(pattern),
			LinkFunc:        s.snippetLink,
		})
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", relPath, err)
		}

		routes = append(routes, &Route{
			Pattern:  pattern,
			FilePath: relPath,
			Page:     page,
		})
		return nil
	})
	if err != nil {
		return err
	}

	sortRoutes(routes)

	s.mu.Lock()
	s.routes = routes
	s.mu.Unlock()

	s.logger.Debug("discovered pages", zap.Int("count", len(routes)))
	return nil
}

// Routes returns the discovered routes in index order.
func (s *Server) Routes() []*Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes
}

func (s *Server) route(pattern string) *Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.routes {
		if r.Pattern == pattern {
			return r
		}
	}
	return nil
}

// DefaultText returns the playground's fallback buffer.
func (s *Server) DefaultText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultText
}

// snippetLink is the relative playground address that opens snip.
func (s *Server) snippetLink(snip *resultplay.Snippet) string {
	base := &url.URL{Path: s.config.Playground.Path}
	return sharelink.WithToken(base, s.config.Playground.QueryParam, sharelink.Encode(snip.Code)).String()
}

// publicBase is the playground address share links are built on when there
// is no browser location, e.g. for the JSON API.
func (s *Server) publicBase(r *http.Request) *url.URL {
	if s.config.PublicURL != "" {
		if u, err := url.Parse(s.config.PublicURL); err == nil {
			u.Path = strings.TrimSuffix(u.Path, "/") + s.config.Playground.Path
			return u
		}
	}
	return &url.URL{Scheme: requestScheme(r), Host: r.Host, Path: s.config.Playground.Path}
}

// mdToPattern converts a path relative to the docs directory into a URL.
func mdToPattern(relPath string) string {
	path := filepath.ToSlash(strings.TrimSuffix(relPath, ".md"))

	// Handle index files
	if path == "index" {
		return "/docs/"
	}
	if strings.HasSuffix(path, "/index") {
		return "/docs/" + strings.TrimSuffix(path, "index")
	}

	return "/docs/" + path
}

// pageID strips the docs prefix from a route pattern: "/docs/" is "index",
// "/docs/guide/" is "guide/index".
func pageID(pattern string) string {
	id := strings.TrimPrefix(pattern, "/docs/")
	if id == "" || strings.HasSuffix(id, "/") {
		id += "index"
	}
	return id
}

// sortRoutes puts the docs index first, then orders by frontmatter order,
// directory indexes before their siblings, and finally by pattern.
func sortRoutes(routes []*Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.Pattern == "/docs/" || b.Pattern == "/docs/" {
			return a.Pattern == "/docs/"
		}
		if a.Page.Order != b.Page.Order {
			return a.Page.Order < b.Page.Order
		}
		aIsIndex := strings.HasSuffix(a.Pattern, "/")
		bIsIndex := strings.HasSuffix(b.Pattern, "/")
		if aIsIndex != bIsIndex {
			return aIsIndex
		}
		return a.Pattern < b.Pattern
	})
}

// serveIndex sends visitors to the docs index, or to the playground when
// the site has no pages.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	target := s.config.Playground.Path
	if len(s.Routes()) > 0 {
		target = "/docs/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// RegisterConnection adds a docs page connection for reload broadcasts.
func (s *Server) RegisterConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[conn] = true
}

// UnregisterConnection removes a docs page connection.
func (s *Server) UnregisterConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, conn)
}

// BroadcastReload tells every open docs page to reload.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if len(s.connections) == 0 {
		return
	}

	s.logger.Debug("broadcasting reload",
		zap.String("path", filePath),
		zap.Int("connections", len(s.connections)))

	for conn := range s.connections {
		if err := conn.WriteJSON(map[string]string{"type": "reload", "path": filePath}); err != nil {
			s.logger.Debug("failed to send reload", zap.Error(err))
		}
	}
}

// reload re-reads whatever filePath affects and notifies open pages.
func (s *Server) reload(filePath string) error {
	if s.config.Playground.DefaultFile != "" && isSameFile(s.rootDir, filePath, s.config.Playground.DefaultFile) {
		text, err := s.config.ResolveDefaultText(s.rootDir)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.defaultText = text
		s.mu.Unlock()
		s.logger.Info("default playground text reloaded")
		return nil
	}

	if err := s.Discover(); err != nil {
		return err
	}
	s.metrics.DocsReloaded()
	s.BroadcastReload(filePath)
	return nil
}

func isSameFile(rootDir, rel, configured string) bool {
	if !filepath.IsAbs(configured) {
		configured = filepath.Join(rootDir, configured)
	}
	if !filepath.IsAbs(rel) {
		rel = filepath.Join(rootDir, rel)
	}
	return filepath.Clean(rel) == filepath.Clean(configured)
}

// EnableWatch enables file watching for live reload.
func (s *Server) EnableWatch() error {
	var extra []string
	if f := s.config.Playground.DefaultFile; f != "" {
		if !filepath.IsAbs(f) {
			f = filepath.Join(s.rootDir, f)
		}
		extra = append(extra, f)
	}

	watcher, err := NewWatcher(s.rootDir, extra, s.reload, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher
	watcher.Start()
	return nil
}

// StopWatch stops the file watcher.
func (s *Server) StopWatch() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop()
}

// Close stops background work, disposes open sessions and releases the
// formatter. It is safe to call more than once.
func (s *Server) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(err, s.StopWatch())
		s.cancel()
		s.playground.Close()
		if s.limiterDone != nil {
			<-s.limiterDone
		}

		s.connMu.Lock()
		for conn := range s.connections {
			conn.Close()
		}
		s.connMu.Unlock()

		if s.formatter != nil {
			err = errors.Join(err, format.Close(ctx, s.formatter))
		}
	})
	return err
}
