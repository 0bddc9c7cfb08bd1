package resultplay

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// contextLines is how many lines are shown on each side of the failing line.
const contextLines = 2

// ParseError reports a problem in a docs page. Its message quotes the page
// around the failing line, read from the parsed content when it is known and
// from File otherwise.
type ParseError struct {
	File    string // Absolute path; empty for in-memory input
	Line    int    // 1-indexed
	Column  int    // 1-indexed, 0 when unknown
	Snippet string // Playground snippet id the error concerns, if any
	Message string
	Hint    string
	Related string // e.g. `Snippet "chain" first defined at line 12`
	Err     error  // Underlying cause, such as a YAML error

	source []byte
}

// NewParseError creates a ParseError at line.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{File: file, Line: line, Message: message}
}

func (e *ParseError) Error() string {
	return e.Format()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Format renders the error over several lines with the surrounding source.
func (e *ParseError) Format() string {
	var b strings.Builder

	file := e.File
	if file == "" {
		file = "<input>"
	}
	fmt.Fprintf(&b, "Error in %s\n\n", file)
	if e.Snippet != "" {
		fmt.Fprintf(&b, "Line %d (snippet %q): %s\n", e.Line, e.Snippet, e.Message)
	} else {
		fmt.Fprintf(&b, "Line %d: %s\n", e.Line, e.Message)
	}

	b.WriteString(e.excerpt())

	if e.Hint != "" {
		fmt.Fprintf(&b, "\nTip: %s\n", e.Hint)
	}
	if e.Related != "" {
		fmt.Fprintf(&b, "\nSee: %s\n", e.Related)
	}
	return b.String()
}

func (e *ParseError) lines() []string {
	src := e.source
	if src == nil && e.File != "" {
		data, err := os.ReadFile(e.File)
		if err != nil {
			return nil
		}
		src = data
	}
	if len(src) == 0 {
		return nil
	}
	return strings.Split(string(bytes.TrimSuffix(src, []byte("\n"))), "\n")
}

// excerpt numbers the lines around Line and marks Column with a caret.
func (e *ParseError) excerpt() string {
	lines := e.lines()
	if e.Line < 1 || e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for i := max(1, e.Line-contextLines); i <= min(len(lines), e.Line+contextLines); i++ {
		prefix := fmt.Sprintf("  %2d | ", i)
		b.WriteString(prefix + lines[i-1] + "\n")
		if i == e.Line && e.Column > 0 {
			b.WriteString(strings.Repeat(" ", len(prefix)+e.Column-1) + "^\n")
		}
	}
	return b.String()
}

// WithColumn sets the 1-indexed column.
func (e *ParseError) WithColumn(col int) *ParseError {
	e.Column = col
	return e
}

// WithSnippet names the playground snippet the error concerns.
func (e *ParseError) WithSnippet(id string) *ParseError {
	e.Snippet = id
	return e
}

// WithHint adds a suggestion for fixing the page.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithRelated points at another place in the page.
func (e *ParseError) WithRelated(related string) *ParseError {
	e.Related = related
	return e
}

// WithCause records the error that triggered this one.
func (e *ParseError) WithCause(err error) *ParseError {
	e.Err = err
	return e
}

// withSource attaches the parsed content unless some is already attached.
func (e *ParseError) withSource(src []byte) *ParseError {
	if e.source == nil {
		e.source = src
	}
	return e
}
