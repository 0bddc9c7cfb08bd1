package resultplay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorFormatting(t *testing.T) {
	content := "# Title\n\nline three\nline four\nline five\nline six\n"
	path := filepath.Join(t.TempDir(), "page.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	err := NewParseError(path, 4, "something is off").
		WithColumn(6).
		WithHint("fix it").
		WithRelated("see line 1")

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Error in "+path))
	assert.Contains(t, msg, "Line 4: something is off")
	assert.Contains(t, msg, "   2 | \n")
	assert.Contains(t, msg, "   4 | line four\n")
	assert.Contains(t, msg, "   6 | line six\n")
	assert.NotContains(t, msg, "   1 | ")
	assert.Contains(t, msg, strings.Repeat(" ", len("   4 | ")+5)+"^\n")
	assert.Contains(t, msg, "Tip: fix it")
	assert.Contains(t, msg, "See: see line 1")
}

func TestParseErrorWithoutFile(t *testing.T) {
	err := NewParseError("", 3, "bad")
	assert.Equal(t, "Error in <input>\n\nLine 3: bad\n", err.Error())
}

func TestParseErrorLineOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.md")
	require.NoError(t, os.WriteFile(path, []byte("one\n"), 0644))

	msg := NewParseError(path, 10, "past the end").Error()
	assert.NotContains(t, msg, " | ")
}

func TestParseErrorExcerptFromParsedContent(t *testing.T) {
	content := "# Snippets\n\n```ts playground id=a\nok(1)\n```\n\n```ts playground id=a\nok(2)\n```\n"

	_, err := ParseString(content, ParseOptions{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "a", pe.Snippet)

	msg := pe.Error()
	assert.Contains(t, msg, "Error in <input>")
	assert.Contains(t, msg, `Line 7 (snippet "a"): duplicate playground snippet id "a"`)
	assert.Contains(t, msg, "   7 | ```ts playground id=a\n")
	assert.Contains(t, msg, "   9 | ```\n")
}

func TestParseErrorUnwrapsCause(t *testing.T) {
	_, err := ParseString("---\norder: [1\n---\n# T\n", ParseOptions{})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Error(t, errors.Unwrap(err))
	assert.Contains(t, pe.Message, errors.Unwrap(err).Error())
	assert.Contains(t, pe.Error(), "   2 | order: [1\n")
}
