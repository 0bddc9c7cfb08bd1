package format

import (
	"context"
	gofmt "go/format"
)

// Go formats Go source the way gofmt does. It ignores Options: gofmt has
// exactly one style.
type Go struct{}

// NewGo returns the gofmt formatter.
func NewGo() *Go {
	return &Go{}
}

// Name returns the formatter identifier
func (g *Go) Name() string { return "go" }

// Format runs go/format over src.
func (g *Go) Format(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FormatError{Formatter: g.Name(), Err: err}
	}
	out, err := gofmt.Source([]byte(src))
	if err != nil {
		return "", &FormatError{Formatter: g.Name(), Err: err}
	}
	if err := checkOutput(g.Name(), src, string(out)); err != nil {
		return "", err
	}
	return string(out), nil
}
