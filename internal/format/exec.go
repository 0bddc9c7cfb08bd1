package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExecConfig configures an external formatter command.
type ExecConfig struct {
	Cmd         string        // e.g. "prettier --stdin-filepath playground.ts"
	Dir         string        // Working directory for the command
	Env         map[string]string
	Timeout     time.Duration // Default 10s
	Options     Options
	PassOptions bool // Append Options.Flags() to the command line
}

// Exec pipes the buffer through a command: source on stdin, formatted text
// on stdout, diagnostics on stderr, non-zero exit on failure.
type Exec struct {
	name    string
	args    []string
	dir     string
	env     []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExec validates cfg and returns the formatter.
func NewExec(cfg ExecConfig, logger *zap.Logger) (*Exec, error) {
	// Parse command - split by spaces (simple parsing)
	parts := strings.Fields(cfg.Cmd)
	if len(parts) == 0 {
		return nil, fmt.Errorf("exec formatter: cmd is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	args := append([]string{}, parts[1:]...)
	if cfg.PassOptions {
		args = append(args, cfg.Options.Flags()...)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Inherit current environment and add custom variables
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
	}

	return &Exec{
		name:    parts[0],
		args:    args,
		dir:     cfg.Dir,
		env:     env,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Name returns the formatter identifier
func (e *Exec) Name() string { return "exec:" + e.name }

// Args returns the arguments the command is started with.
func (e *Exec) Args() []string {
	return append([]string{}, e.args...)
}

// Format runs the command with src on stdin.
func (e *Exec) Format(ctx context.Context, src string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, e.name, e.args...)
	cmd.Dir = e.dir
	cmd.Env = e.env
	cmd.Stdin = strings.NewReader(src)
	cmd.WaitDelay = time.Second // grandchildren may hold stdout open after a kill

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("exec formatter finished",
		zap.String("cmd", e.name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes_in", len(src)),
		zap.Int("bytes_out", stdout.Len()),
		zap.Error(err))

	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return "", &FormatError{Formatter: e.Name(), Err: fmt.Errorf("timed out after %s: %w", e.timeout, context.DeadlineExceeded)}
		}
		return "", &FormatError{Formatter: e.Name(), Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	out := stdout.String()
	if err := checkOutput(e.Name(), src, out); err != nil {
		return "", err
	}
	return out, nil
}
