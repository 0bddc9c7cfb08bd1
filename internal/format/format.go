// Package format runs playground buffers through an external formatter.
//
// A Formatter is opaque to the rest of the playground: it receives the source
// text and returns the rewritten text or an error. Every implementation
// reports failures as *FormatError so callers can leave the buffer untouched
// and surface a notice.
package format

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/config"
)

// Formatter rewrites source text into a canonical style.
type Formatter interface {
	Name() string
	Format(ctx context.Context, src string) (string, error)
}

// Options is the fixed style configuration handed to the formatter.
type Options struct {
	PrintWidth    int
	TabWidth      int
	UseTabs       bool
	SingleQuote   bool
	TrailingComma string // "none", "es5" or "all"
}

// OptionsFromConfig extracts the style options from the formatter section.
func OptionsFromConfig(cfg config.FormatterConfig) Options {
	return Options{
		PrintWidth:    cfg.PrintWidth,
		TabWidth:      cfg.TabWidth,
		UseTabs:       cfg.UseTabs,
		SingleQuote:   cfg.SingleQuote,
		TrailingComma: cfg.TrailingComma,
	}
}

// Flags renders the options as prettier-style command line flags.
// Zero values are left out so the formatter's own defaults apply.
func (o Options) Flags() []string {
	var flags []string
	if o.PrintWidth > 0 {
		flags = append(flags, "--print-width="+strconv.Itoa(o.PrintWidth))
	}
	if o.TabWidth > 0 {
		flags = append(flags, "--tab-width="+strconv.Itoa(o.TabWidth))
	}
	if o.UseTabs {
		flags = append(flags, "--use-tabs")
	}
	if o.SingleQuote {
		flags = append(flags, "--single-quote")
	}
	if o.TrailingComma != "" {
		flags = append(flags, "--trailing-comma="+o.TrailingComma)
	}
	return flags
}

// ErrDisabled is returned by the "none" formatter.
var ErrDisabled = errors.New("no formatter configured")

// FormatError wraps a formatter failure with the formatter's name.
type FormatError struct {
	Formatter string
	Err       error
	Stderr    string // Diagnostic output of external formatters, if any
}

func (e *FormatError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("format %q failed: %v: %s", e.Formatter, e.Err, e.Stderr)
	}
	return fmt.Sprintf("format %q failed: %v", e.Formatter, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// checkOutput rejects results no caller could safely put in the buffer.
func checkOutput(name, src, out string) error {
	if !utf8.ValidString(out) {
		return &FormatError{Formatter: name, Err: errors.New("formatter returned invalid UTF-8")}
	}
	if out == "" && src != "" {
		return &FormatError{Formatter: name, Err: errors.New("formatter returned empty output")}
	}
	return nil
}

// New builds the formatter selected by cfg. siteDir anchors relative
// command and module paths.
func New(cfg config.FormatterConfig, siteDir string, logger *zap.Logger) (Formatter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("format")
	opts := OptionsFromConfig(cfg)

	switch cfg.Kind {
	case "", "none":
		return None{}, nil
	case "go":
		return NewGo(), nil
	case "exec":
		if !config.IsExecAllowed() {
			return nil, fmt.Errorf("exec formatter %q requires --allow-exec", cfg.Cmd)
		}
		f, err := NewExec(ExecConfig{
			Cmd:         cfg.Cmd,
			Dir:         siteDir,
			Timeout:     cfg.GetTimeout(),
			Options:     opts,
			PassOptions: cfg.PassOptions,
		}, logger)
		if err != nil {
			return nil, err
		}
		return withCache(f, cfg.GetCacheTTL()), nil
	case "wasm":
		f, err := NewWasm(context.Background(), WasmConfig{
			Path:        cfg.Wasm,
			Dir:         siteDir,
			Timeout:     cfg.GetTimeout(),
			Options:     opts,
			PassOptions: cfg.PassOptions,
		}, logger)
		if err != nil {
			return nil, err
		}
		return withCache(f, cfg.GetCacheTTL()), nil
	default:
		return nil, fmt.Errorf("unknown formatter kind %q", cfg.Kind)
	}
}

// None refuses to format. The playground hides the format actions when it
// is configured.
type None struct{}

// Name returns the formatter identifier
func (None) Name() string { return "none" }

// Format always fails with ErrDisabled.
func (None) Format(ctx context.Context, src string) (string, error) {
	return "", &FormatError{Formatter: "none", Err: ErrDisabled}
}

// Close releases formatter resources when the implementation holds any.
func Close(ctx context.Context, f Formatter) error {
	if c, ok := f.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}
