package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/logging"
	"github.com/livetemplate/resultplay/internal/server"
	"github.com/livetemplate/resultplay/internal/session"
)

// App owns the loopback server the window browses.
type App struct {
	ctx    context.Context
	logger *zap.Logger

	mu         sync.RWMutex
	server     *server.Server
	httpServer *http.Server
	baseURL    string
	currentDir string
	scratchDir string // Removed when the server stops
}

// NewApp creates a new App application struct.
func NewApp() *App {
	logger, err := logging.NewConsole(false)
	if err != nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger.Named("desktop")}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

func (a *App) shutdown(ctx context.Context) {
	a.stopServer(ctx)
	_ = a.logger.Sync()
}

// clipboard writes share links to the native clipboard instead of asking
// the webview, which may refuse without a user gesture.
func (a *App) clipboard() session.Clipboard {
	return session.ClipboardFunc(func(_ context.Context, text string) error {
		return runtime.ClipboardSetText(a.ctx, text)
	})
}

func (a *App) stopServer(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.httpServer != nil {
		_ = a.httpServer.Shutdown(ctx)
		a.httpServer = nil
	}
	if a.server != nil {
		if err := a.server.Close(ctx); err != nil {
			a.logger.Warn("failed to close server", zap.Error(err))
		}
		a.server = nil
	}
	if a.scratchDir != "" {
		_ = os.RemoveAll(a.scratchDir)
		a.scratchDir = ""
	}
	a.baseURL = ""
	a.currentDir = ""
}

// NewPlayground starts an empty site and opens its playground.
func (a *App) NewPlayground() error {
	dir, err := os.MkdirTemp("", "resultplay-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	cfg := config.DefaultConfig()
	cfg.Docs.HotReload = false

	if err := a.start(dir, cfg, true); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	runtime.WindowSetTitle(a.ctx, "Result Playground")
	a.navigate(cfg.Playground.Path)
	return nil
}

// OpenDirectory asks for a docs site and serves it.
func (a *App) OpenDirectory() (string, error) {
	selection, err := runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Open Docs Directory",
	})
	if err != nil || selection == "" {
		return "", err
	}

	absDir, err := filepath.Abs(selection)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	cfg, err := config.LoadFromDir(absDir)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Docs.HotReload = true

	if err := a.start(absDir, cfg, false); err != nil {
		return "", err
	}
	runtime.WindowSetTitle(a.ctx, fmt.Sprintf("%s - %s", cfg.Title, filepath.Base(absDir)))
	a.navigate("/")
	return absDir, nil
}

// start replaces the running server with one for dir on a free loopback port.
func (a *App) start(dir string, cfg *config.Config, scratch bool) error {
	a.stopServer(context.Background())

	srv, err := server.New(dir, cfg,
		server.WithLogger(a.logger),
		server.WithClipboard(a.clipboard()))
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if cfg.Docs.HotReload {
		if err := srv.EnableWatch(); err != nil {
			srv.Close(context.Background())
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		srv.Close(context.Background())
		return fmt.Errorf("failed to find free port: %w", err)
	}
	httpServer := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	a.mu.Lock()
	a.server = srv
	a.httpServer = httpServer
	a.baseURL = "http://" + ln.Addr().String()
	a.currentDir = dir
	if scratch {
		a.scratchDir = dir
	}
	a.mu.Unlock()

	a.logger.Info("serving", zap.String("dir", dir), zap.String("url", a.baseURL))
	return nil
}

func (a *App) navigate(path string) {
	if u := a.GetServerURL(); u != "" {
		runtime.EventsEmit(a.ctx, "navigate", u+path)
	}
}

// GetCurrentDirectory returns the served directory.
func (a *App) GetCurrentDirectory() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentDir
}

// GetServerURL returns the URL of the running server, or empty string if not running.
func (a *App) GetServerURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.baseURL
}

// GetHandler serves the welcome screen until a server is running, then
// the server itself.
func (a *App) GetHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		srv := a.server
		a.mu.RUnlock()

		if srv != nil {
			srv.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(welcomeHTML))
	})
}

const welcomeHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8"/>
    <title>Result Playground</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            background: #1b2636;
            color: #e2e8f0;
            min-height: 100vh;
            margin: 0;
            display: flex;
            flex-direction: column;
            align-items: center;
            justify-content: center;
        }
        p { color: #94a3b8; }
        button {
            background: #2563eb;
            border: none;
            color: white;
            padding: 0.75rem 1.5rem;
            font-size: 1rem;
            border-radius: 6px;
            cursor: pointer;
            margin: 0 0.5rem;
        }
        kbd { background: #334155; border-radius: 4px; padding: 0.2rem 0.4rem; }
        .error { color: #ef4444; }
    </style>
</head>
<body>
    <h1>Result Playground</h1>
    <p>Start an empty playground or open a directory of docs with playground snippets.</p>
    <div>
        <button id="newPlayground">New Playground</button>
        <button id="openDir">Open Docs Directory</button>
    </div>
    <p><kbd>Cmd+N</kbd> / <kbd>Ctrl+N</kbd> new playground, <kbd>Cmd+O</kbd> / <kbd>Ctrl+O</kbd> open</p>
    <p id="status"></p>
    <script>
        function initApp() {
            const statusEl = document.getElementById('status');
            function fail(err) {
                statusEl.textContent = 'Error: ' + err;
                statusEl.className = 'error';
            }
            document.getElementById('newPlayground').addEventListener('click', function() {
                window.go.main.App.NewPlayground().catch(fail);
            });
            document.getElementById('openDir').addEventListener('click', function() {
                window.go.main.App.OpenDirectory().catch(fail);
            });
            window.runtime.EventsOn('navigate', function(url) {
                window.location.href = url;
            });
        }

        function waitForWails() {
            if (window.go && window.runtime) {
                initApp();
            } else {
                setTimeout(waitForWails, 50);
            }
        }
        waitForWails();
    </script>
</body>
</html>`
