package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/server"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	configPath string
	port       int
	host       string
	publicURL  string
	watch      bool
	noWatch    bool
	allowExec  bool
	jsonLogs   bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Start the playground and docs server",
		Example: `  resultplay serve                  # Serve current directory
  resultplay serve ./site -p 3000   # Serve ./site on port 3000
  resultplay serve --no-watch       # Disable live reload`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, siteDir(args), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: <directory>/resultplay.yaml)")
	f.IntVarP(&opts.port, "port", "p", 0, "Port to listen on")
	f.StringVar(&opts.host, "host", "", "Host to bind")
	f.StringVar(&opts.publicURL, "public-url", "", "Base URL for share links made outside a browser session")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Reload docs when files change")
	f.BoolVar(&opts.noWatch, "no-watch", false, "Disable live reload")
	f.BoolVar(&opts.allowExec, "allow-exec", false, "Allow the exec formatter to run external commands")
	f.BoolVar(&opts.jsonLogs, "json-logs", false, "Write structured JSON logs to stderr")
	cmd.MarkFlagsMutuallyExclusive("watch", "no-watch")
	return cmd
}

// applyFlags lets CLI flags override config file values.
func (o *serveOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = o.port
	}
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.publicURL != "" {
		cfg.PublicURL = o.publicURL
	}
	switch {
	case o.watch:
		cfg.Docs.HotReload = true
	case o.noWatch:
		cfg.Docs.HotReload = false
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, dir string, opts *serveOptions) error {
	config.SetAllowExec(opts.allowExec)

	cfg, absDir, err := loadConfig(dir, opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.applyFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg, opts.jsonLogs)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.New(absDir, cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Serving: %s\n", absDir)
	if routes := srv.Routes(); len(routes) > 0 {
		fmt.Fprintf(out, "\nPages discovered:\n")
		for _, route := range routes {
			fmt.Fprintf(out, "  %-30s %s\n", route.Pattern, route.FilePath)
		}
	}

	if cfg.Docs.HotReload {
		if err := srv.EnableWatch(); err != nil {
			srv.Close(context.Background())
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		srv.Close(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	fmt.Fprintf(out, "\nPlayground: http://%s%s\n", ln.Addr(), cfg.Playground.Path)
	if config.IsExecAllowed() {
		fmt.Fprintf(out, "Exec formatter enabled (--allow-exec)\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runServer(ctx, ln, srv, logger)
}

// runServer serves srv on ln until ctx is done, then shuts the listener
// down and closes the server.
func runServer(ctx context.Context, ln net.Listener, srv *server.Server, logger *zap.Logger) error {
	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Websocket connections are hijacked, so Shutdown does not wait for
		// them; Close ends those sessions.
		return errors.Join(httpServer.Shutdown(shutdownCtx), srv.Close(shutdownCtx))
	})
	return g.Wait()
}
