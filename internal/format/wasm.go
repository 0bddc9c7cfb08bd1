package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// WasmConfig configures a formatter compiled to a WASI command module.
type WasmConfig struct {
	Path        string // .wasm file, relative to Dir unless absolute
	Dir         string
	Timeout     time.Duration // Default 10s
	Options     Options
	PassOptions bool // Pass Options.Flags() as argv
}

// Wasm runs a WASI command module per call. The module reads the source on
// stdin, writes the result on stdout and exits non-zero on failure.
type Wasm struct {
	path     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	args     []string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewWasm reads and compiles the module. Close releases the runtime.
func NewWasm(ctx context.Context, cfg WasmConfig, logger *zap.Logger) (*Wasm, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wasm formatter: path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Resolve path
	wasmPath := cfg.Path
	if !filepath.IsAbs(wasmPath) {
		wasmPath = filepath.Join(cfg.Dir, wasmPath)
	}

	// Read WASM file
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM file %s: %w", wasmPath, err)
	}

	// Close on deadline so a runaway module is stopped by the call context.
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	// Instantiate WASI for system calls
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile WASM module %s: %w", wasmPath, err)
	}

	args := []string{filepath.Base(wasmPath)}
	if cfg.PassOptions {
		args = append(args, cfg.Options.Flags()...)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Wasm{
		path:     wasmPath,
		runtime:  r,
		compiled: compiled,
		args:     args,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Name returns the formatter identifier
func (w *Wasm) Name() string { return "wasm:" + filepath.Base(w.path) }

// Format instantiates a fresh module with src on stdin.
func (w *Wasm) Format(ctx context.Context, src string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous, so concurrent calls don't collide
		WithArgs(w.args...).
		WithStdin(strings.NewReader(src)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	start := time.Now()
	mod, err := w.runtime.InstantiateModule(callCtx, w.compiled, modCfg)
	if mod != nil {
		mod.Close(callCtx)
	}
	w.logger.Debug("wasm formatter finished",
		zap.String("module", w.path),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() != 0 {
				return "", &FormatError{
					Formatter: w.Name(),
					Err:       fmt.Errorf("module exited with code %d", exitErr.ExitCode()),
					Stderr:    strings.TrimSpace(stderr.String()),
				}
			}
		} else {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return "", &FormatError{Formatter: w.Name(), Err: fmt.Errorf("timed out after %s: %w", w.timeout, context.DeadlineExceeded)}
			}
			return "", &FormatError{Formatter: w.Name(), Err: err, Stderr: strings.TrimSpace(stderr.String())}
		}
	}

	out := stdout.String()
	if err := checkOutput(w.Name(), src, out); err != nil {
		return "", err
	}
	return out, nil
}

// Close releases the compiled module and the runtime.
func (w *Wasm) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
