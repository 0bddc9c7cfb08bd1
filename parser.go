package resultplay

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// PlaygroundFlag marks a fenced code block as a playground snippet.
const PlaygroundFlag = "playground"

// Frontmatter represents the YAML frontmatter at the top of a markdown file.
type Frontmatter struct {
	Title    string `yaml:"title"`
	Language string `yaml:"language"` // Default snippet language
	Order    int    `yaml:"order"`
}

// ParseOptions controls snippet extraction and link rendering.
type ParseOptions struct {
	DefaultLanguage string // Used when neither the fence nor the frontmatter names one
	PageID          string // Stored on every snippet

	// LinkFunc returns the "Open in playground" href for a snippet. When nil
	// no links are rendered.
	LinkFunc func(s *Snippet) string
}

// linkClass is set on the paragraph holding a playground link.
const linkClass = "playground-link"

// ParseMarkdown parses a markdown file, extracts frontmatter and playground
// snippets and renders the body to HTML. Snippets stay in the rendered
// output, each followed by a link that opens it in the playground.
func ParseMarkdown(content []byte, opts ParseOptions) (*Frontmatter, []*Snippet, string, error) {
	// Extract frontmatter
	frontmatter, remaining, err := extractFrontmatter(content)
	if err != nil {
		return nil, nil, "", err
	}
	if frontmatter.Language == "" {
		frontmatter.Language = opts.DefaultLanguage
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	reader := text.NewReader(remaining)
	doc := md.Parser().Parse(reader)

	lineOffset := bytes.Count(content[:len(content)-len(remaining)], []byte("\n"))

	var (
		snippets []*Snippet
		fences   []*ast.FencedCodeBlock
		firstH1  string
		seen     = make(map[string]int) // id -> line
	)
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && firstH1 == "" {
				firstH1 = plainText(node, remaining)
			}
		case *ast.FencedCodeBlock:
			snippet, parseErr := parseSnippet(node, remaining, lineOffset, frontmatter.Language)
			if parseErr != nil {
				return ast.WalkStop, parseErr
			}
			if snippet == nil {
				return ast.WalkContinue, nil
			}
			if snippet.ID == "" {
				snippet.ID = "snippet-" + strconv.Itoa(len(snippets)+1)
			}
			if first, dup := seen[snippet.ID]; dup {
				return ast.WalkStop, NewParseError("", snippet.Line, fmt.Sprintf("duplicate playground snippet id %q", snippet.ID)).
					WithSnippet(snippet.ID).
					WithHint("give each playground block a unique id=...").
					WithRelated(fmt.Sprintf("Snippet %q first defined at line %d", snippet.ID, first))
			}
			seen[snippet.ID] = snippet.Line
			snippet.Page = opts.PageID
			snippets = append(snippets, snippet)
			fences = append(fences, node)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, nil, "", err
	}

	if frontmatter.Title == "" {
		frontmatter.Title = firstH1
	}

	// Insert links after walking; the walk must not see the new nodes.
	if opts.LinkFunc != nil {
		for i, fenced := range fences {
			insertPlaygroundLink(fenced, opts.LinkFunc(snippets[i]))
		}
	}

	var htmlBuf bytes.Buffer
	if err := md.Renderer().Render(&htmlBuf, remaining, doc); err != nil {
		return nil, nil, "", fmt.Errorf("failed to render HTML: %w", err)
	}

	return frontmatter, snippets, htmlBuf.String(), nil
}

// extractFrontmatter extracts YAML frontmatter from the beginning of content.
// Returns the parsed frontmatter and the remaining content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	// Search from the opening newline so an empty block closes immediately.
	body := content[3:]
	var yamlContent, remaining []byte
	if idx := bytes.Index(body, []byte("\n---\n")); idx != -1 {
		yamlContent = body[:idx]
		remaining = body[idx+len("\n---\n"):]
	} else if bytes.HasSuffix(body, []byte("\n---")) {
		yamlContent = body[:len(body)-len("\n---")]
	} else {
		return nil, nil, NewParseError("", 1, "unclosed frontmatter").
			WithHint("end the frontmatter with a line containing only ---")
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, nil, NewParseError("", 2, fmt.Sprintf("invalid frontmatter: %v", err)).
			WithCause(err).
			WithHint("frontmatter supports title, language and order")
	}

	return &fm, remaining, nil
}

// parseSnippet parses a fenced code block and extracts playground metadata.
// Info string format: `ts playground id=chain title="Chaining results"`.
// Blocks without the playground flag return nil.
func parseSnippet(fenced *ast.FencedCodeBlock, source []byte, lineOffset int, defaultLanguage string) (*Snippet, error) {
	if fenced.Info == nil {
		return nil, nil
	}
	info := string(fenced.Info.Segment.Value(source))
	parts := splitInfo(info)
	if len(parts) == 0 {
		return nil, nil
	}

	isPlayground := false
	metadata := make(map[string]string)
	language := ""
	for i, part := range parts {
		if key, value, ok := strings.Cut(part, "="); ok {
			metadata[key] = value
			continue
		}
		if part == PlaygroundFlag {
			isPlayground = true
			continue
		}
		if i == 0 {
			language = part
		}
	}
	if !isPlayground {
		return nil, nil
	}
	if language == "" {
		language = defaultLanguage
	}

	line := lineOffset + bytes.Count(source[:fenced.Info.Segment.Start], []byte("\n")) + 1

	var buf bytes.Buffer
	lines := fenced.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	if strings.TrimSpace(buf.String()) == "" {
		return nil, NewParseError("", line, "playground snippet is empty").
			WithSnippet(metadata["id"]).
			WithHint("remove the playground flag or add code to the block")
	}

	return &Snippet{
		ID:       metadata["id"],
		Title:    metadata["title"],
		Language: language,
		Code:     buf.String(),
		Line:     line,
	}, nil
}

// splitInfo splits a fence info string on spaces, keeping double-quoted
// values together and dropping the quotes.
func splitInfo(info string) []string {
	var (
		parts   []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range info {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case (r == ' ' || r == '\t') && !quoted:
			if started {
				parts = append(parts, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		parts = append(parts, cur.String())
	}
	return parts
}

// plainText concatenates the text under n.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// insertPlaygroundLink adds `<p class="playground-link"><a href=...>` after
// the fence.
func insertPlaygroundLink(fenced *ast.FencedCodeBlock, href string) {
	parent := fenced.Parent()
	if parent == nil || href == "" {
		return
	}
	link := ast.NewLink()
	link.Destination = []byte(href)
	link.AppendChild(link, ast.NewString([]byte("Open in playground")))

	para := ast.NewParagraph()
	para.SetAttributeString("class", []byte(linkClass))
	para.AppendChild(para, link)
	parent.InsertAfter(parent, fenced, para)
}
