package server

import (
	"bytes"
	"html/template"
	"net/http"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// NavItem is one entry of the site navigation.
type NavItem struct {
	Path   string
	Title  string
	Active bool
}

type snippetLink struct {
	ID    string
	Title string
	Link  string
}

type docsPageData struct {
	SiteTitle string
	Title     string
	Nav       []NavItem
	Content   template.HTML
	Snippets  []snippetLink
}

// docRenderer sanitizes rendered markdown before it is inlined into a page.
type docRenderer struct {
	policy *bluemonday.Policy
}

var classPattern = regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)

func newDocRenderer() *docRenderer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("class").Matching(classPattern).OnElements("code", "pre", "p", "span", "div")
	// Playground links stay on this site.
	p.RequireNoFollowOnLinks(false)
	return &docRenderer{policy: p}
}

func (d *docRenderer) sanitize(html string) template.HTML {
	return template.HTML(d.policy.Sanitize(html))
}

// nav builds the navigation for a request path.
func (s *Server) nav(current string) []NavItem {
	routes := s.Routes()
	items := make([]NavItem, 0, len(routes)+1)
	for _, r := range routes {
		items = append(items, NavItem{Path: r.Pattern, Title: r.Page.Title, Active: r.Pattern == current})
	}
	items = append(items, NavItem{
		Path:   s.config.Playground.Path,
		Title:  "Playground",
		Active: current == s.config.Playground.Path,
	})
	return items
}

// serveDoc renders one documentation page.
func (s *Server) serveDoc(w http.ResponseWriter, r *http.Request) {
	route := s.route(r.URL.Path)
	if route == nil {
		http.NotFound(w, r)
		return
	}
	page := route.Page

	data := docsPageData{
		SiteTitle: s.config.Title,
		Title:     page.Title,
		Nav:       s.nav(route.Pattern),
		Content:   s.docs.sanitize(page.HTML),
	}
	for _, snip := range page.Snippets {
		data.Snippets = append(data.Snippets, snippetLink{
			ID:    snip.ID,
			Title: snip.Title,
			Link:  s.snippetLink(snip),
		})
	}

	s.render(w, "docs.html", data)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// serveReloadWS keeps a docs page connected so it can be told to reload.
func (s *Server) serveReloadWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("reload upgrade failed", zap.Error(err))
		return
	}
	s.RegisterConnection(conn)
	defer func() {
		s.UnregisterConnection(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
