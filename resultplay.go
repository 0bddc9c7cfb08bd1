// Package resultplay provides the documentation side of the Result
// playground: markdown pages with YAML frontmatter whose fenced code blocks
// flagged "playground" become snippets that open in the playground editor.
package resultplay

// Page represents a parsed documentation page.
type Page struct {
	ID         string // Route-derived id, e.g. "guide/chaining"
	Title      string
	Language   string // Default language for the page's snippets
	Order      int    // Sort key in the docs index; ties sort by ID
	SourceFile string // Absolute path to source .md file (for error messages)
	HTML       string // Rendered body, playground links included
	Snippets   []*Snippet
}

// Snippet is a fenced code block that can be opened in the playground.
type Snippet struct {
	ID       string `json:"id"`
	Page     string `json:"page"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Line     int    `json:"line"` // Line of the opening fence
}

// New creates an empty page with the given ID.
func New(id string) *Page {
	return &Page{ID: id}
}

// Snippet returns the snippet with the given ID.
func (p *Page) Snippet(id string) (*Snippet, bool) {
	for _, s := range p.Snippets {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
