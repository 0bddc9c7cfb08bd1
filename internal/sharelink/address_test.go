package sharelink

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestToken(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"absent", "http://x/playground", "", false},
		{"empty value", "http://x/playground?code=", "", false},
		{"present", "http://x/playground?code=YWJj", "YWJj", true},
		{"escaped base64", "http://x/playground?code=Y29u%2B%2F%3D", "Y29u+/=", true},
		{"among others", "http://x/playground?lang=ts&code=YWJj&theme=dark", "YWJj", true},
		{"first wins", "http://x/playground?code=YWJj&code=ZGVm", "YWJj", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Token(mustParse(t, tt.raw), DefaultParam)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithTokenReplacesAndKeepsOrder(t *testing.T) {
	u := mustParse(t, "http://x/playground?lang=ts&code=old&theme=dark&code=older#top")

	next := WithToken(u, DefaultParam, "Y29u+/=")

	assert.Equal(t, "lang=ts&code=Y29u%2B%2F%3D&theme=dark", next.RawQuery)
	assert.Equal(t, "top", next.Fragment)
	// The input is not mutated.
	assert.Equal(t, "lang=ts&code=old&theme=dark&code=older", u.RawQuery)
}

func TestWithTokenAppends(t *testing.T) {
	next := WithToken(mustParse(t, "http://x/playground?lang=ts"), DefaultParam, "YWJj")
	assert.Equal(t, "http://x/playground?lang=ts&code=YWJj", next.String())
}

func TestWithoutToken(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"only param", "http://x/playground?code=YWJj", "http://x/playground"},
		{"keeps others", "http://x/playground?a=1&code=YWJj&b=%20two", "http://x/playground?a=1&b=%20two"},
		{"absent", "http://x/playground?a=1", "http://x/playground?a=1"},
		{"repeated", "http://x/playground?code=1&a=1&code=2", "http://x/playground?a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithoutToken(mustParse(t, tt.raw), DefaultParam)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestLinkThenTextFrom(t *testing.T) {
	base := mustParse(t, "https://docs.example.com/playground?theme=dark")

	link := Link(base, DefaultParam, "x=1")

	text, ok, err := TextFrom(mustParse(t, link), DefaultParam)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x=1", text)
}

func TestTextFromMalformed(t *testing.T) {
	text, ok, err := TextFrom(mustParse(t, "http://x/playground?code=not-valid-base64!!!"), DefaultParam)
	assert.True(t, ok)
	assert.Empty(t, text)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, StageBase64, decErr.Stage)
}

func TestNilURL(t *testing.T) {
	_, ok := Token(nil, DefaultParam)
	assert.False(t, ok)
	assert.Equal(t, "?code=YWJj", WithToken(nil, DefaultParam, "YWJj").String())
}
