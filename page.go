package resultplay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseFile parses a markdown file into a Page. The page ID is derived from
// the file name unless opts.PageID is set.
func ParseFile(path string, opts ParseOptions) (*Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Get absolute path for better error messages
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	if opts.PageID == "" {
		opts.PageID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	page, err := parse(content, opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = absPath
			return nil, pe
		}
		return nil, NewParseError(absPath, 1, fmt.Sprintf("failed to parse markdown: %v", err))
	}
	page.SourceFile = absPath
	return page, nil
}

// ParseString parses markdown held in memory.
func ParseString(content string, opts ParseOptions) (*Page, error) {
	if opts.PageID == "" {
		opts.PageID = "inline"
	}
	return parse([]byte(content), opts)
}

func parse(content []byte, opts ParseOptions) (*Page, error) {
	fm, snippets, html, err := ParseMarkdown(content, opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, pe.withSource(content)
		}
		return nil, err
	}

	page := New(opts.PageID)
	page.Title = fm.Title
	if page.Title == "" {
		page.Title = opts.PageID
	}
	page.Language = fm.Language
	page.Order = fm.Order
	page.HTML = html
	page.Snippets = snippets
	return page, nil
}
