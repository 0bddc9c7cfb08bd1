package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/format"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

const chainingPage = `---
title: "Chaining"
order: 2
---
# Chaining

` + "```ts playground id=chain title=\"Map then match\"" + `
ok(1).map((x) => x + 1);
` + "```" + `
`

// writeSite creates files under a temporary site directory.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return dir
}

// newTestServer starts a server over files and closes it when the test ends.
func newTestServer(t *testing.T, files map[string]string, mutate func(*config.Config), opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)

	s, err := New(writeSite(t, files), cfg, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, s.Close(context.Background()))
	})
	return s, ts
}

// noRedirect is a client that reports redirects instead of following them.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func get(t *testing.T, target string) (*http.Response, string) {
	t.Helper()
	resp, err := noRedirect.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestMdToPattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"index.md", "/docs/"},
		{"chaining.md", "/docs/chaining"},
		{"guide/async.md", "/docs/guide/async"},
		{"guide/index.md", "/docs/guide/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, mdToPattern(tt.input))
		})
	}
}

func TestPageID(t *testing.T) {
	assert.Equal(t, "index", pageID("/docs/"))
	assert.Equal(t, "guide/index", pageID("/docs/guide/"))
	assert.Equal(t, "guide/async", pageID("/docs/guide/async"))
}

func TestServerDiscover(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"docs/index.md":          "# Home",
		"docs/chaining.md":       chainingPage,
		"docs/guide/async.md":    "---\norder: 1\n---\n# Async",
		"docs/guide/index.md":    "---\norder: 1\n---\n# Guide",
		"docs/_drafts/draft.md":  "# Draft",
		"docs/.hidden/secret.md": "# Secret",
		"README.md":              "# Not in docs",
	}, nil)

	var patterns []string
	for _, r := range s.Routes() {
		patterns = append(patterns, r.Pattern)
	}
	assert.Equal(t, []string{"/docs/", "/docs/guide/", "/docs/guide/async", "/docs/chaining"}, patterns)

	chaining := s.route("/docs/chaining")
	require.NotNil(t, chaining)
	assert.Equal(t, "Chaining", chaining.Page.Title)
	require.Len(t, chaining.Page.Snippets, 1)
	assert.Equal(t, "chaining", chaining.Page.Snippets[0].Page)
}

func TestServerDiscoverParseError(t *testing.T) {
	dup := "```ts playground id=a\nx\n```\n\n```ts playground id=a\ny\n```\n"
	_, err := New(writeSite(t, map[string]string{"docs/dup.md": dup}), config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dup.md")
}

func TestServeIndexRedirect(t *testing.T) {
	t.Run("docs", func(t *testing.T) {
		_, ts := newTestServer(t, map[string]string{"docs/index.md": "# Home"}, nil)
		resp, _ := get(t, ts.URL+"/")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/docs/", resp.Header.Get("Location"))
	})

	t.Run("no docs", func(t *testing.T) {
		_, ts := newTestServer(t, nil, nil)
		resp, _ := get(t, ts.URL+"/")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/playground", resp.Header.Get("Location"))
	})
}

func TestServeDoc(t *testing.T) {
	_, ts := newTestServer(t, map[string]string{
		"docs/index.md":    "# Home\n\n<script>alert(1)</script>\n",
		"docs/chaining.md": chainingPage,
	}, nil)

	resp, body := get(t, ts.URL+"/docs/chaining")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<h1 id=\"chaining\">Chaining</h1>")
	assert.Contains(t, body, "Open in playground")
	assert.Contains(t, body, "/playground?code="+url.QueryEscape(sharelink.Encode("ok(1).map((x) => x + 1);\n")))
	assert.Contains(t, body, "Map then match")

	_, body = get(t, ts.URL+"/docs/")
	assert.NotContains(t, body, "alert(1)")

	resp, _ = get(t, ts.URL+"/docs/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServePlaygroundPage(t *testing.T) {
	_, ts := newTestServer(t, nil, func(c *config.Config) {
		c.Playground.DefaultText = "default body"
	})

	resp, body := get(t, ts.URL+"/playground")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "default body")
	assert.Contains(t, body, `data-ws-path="/playground/ws"`)
	assert.Contains(t, body, `data-action="format-and-save"`)
	assert.NotContains(t, body, `data-action="format"`, "format only is hidden without a formatter")

	_, body = get(t, ts.URL+"/playground?code="+url.QueryEscape(sharelink.Encode("const a = 1;")))
	assert.Contains(t, body, "const a = 1;")
	assert.NotContains(t, body, "default body")

	_, body = get(t, ts.URL+"/playground?code=not-valid-base64!!!")
	assert.Contains(t, body, "default body")
}

func TestServePlaygroundPageWithFormatter(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, WithFormatter(format.NewGo()))
	_, body := get(t, ts.URL+"/playground")
	assert.Contains(t, body, `data-action="format"`)
	assert.Contains(t, body, "Format Document")
}

func TestServeAssetsAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, nil, nil)

	resp, body := get(t, ts.URL+"/assets/playground.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, "clipboard-result")

	resp, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "resultplay_sessions_active")

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestDefaultFileReload(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"example.ts": "first"}, func(c *config.Config) {
		c.Playground.DefaultFile = "example.ts"
	})
	assert.Equal(t, "first", s.DefaultText())

	require.NoError(t, os.WriteFile(filepath.Join(s.rootDir, "example.ts"), []byte("second"), 0644))
	require.NoError(t, s.reload("example.ts"))
	assert.Equal(t, "second", s.DefaultText())
}

func TestDocsReload(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"docs/index.md": "# Home"}, nil)
	require.Len(t, s.Routes(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(s.rootDir, "docs", "new.md"), []byte("# New"), 0644))
	require.NoError(t, s.reload(filepath.Join("docs", "new.md")))
	assert.Len(t, s.Routes(), 2)
}

func TestServerCloseStopsBackgroundWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := writeSite(t, map[string]string{"docs/index.md": "# Home"})
	s, err := New(dir, config.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.EnableWatch())

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "close is idempotent")
}

func TestSortRoutes(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"docs/b.md":     "---\norder: 1\n---\n# B",
		"docs/a.md":     "---\norder: 1\n---\n# A",
		"docs/z.md":     "# Z",
		"docs/index.md": "---\norder: 9\n---\n# Home",
	}, nil)

	var got []string
	for _, r := range s.Routes() {
		got = append(got, strings.TrimPrefix(r.Pattern, "/docs/"))
	}
	assert.Equal(t, []string{"", "z", "a", "b"}, got)
}
