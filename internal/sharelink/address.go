package sharelink

import (
	"net/url"
	"strings"
)

// DefaultParam is the query parameter that carries the share token.
const DefaultParam = "code"

// Token returns the raw token stored under param. An empty value is
// reported as absent.
func Token(u *url.URL, param string) (string, bool) {
	if u == nil {
		return "", false
	}
	for _, pair := range splitQuery(u.RawQuery) {
		key, value, ok := decodePair(pair)
		if !ok || key != param {
			continue
		}
		if value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

// WithToken returns a copy of u whose param is set to token. Any previous
// occurrences of param are dropped, other pairs keep their order and
// encoding. The new pair goes where the first old one was, or last.
func WithToken(u *url.URL, param, token string) *url.URL {
	next := cloneURL(u)

	encoded := url.QueryEscape(param) + "=" + url.QueryEscape(token)
	var pairs []string
	placed := false
	for _, pair := range splitQuery(next.RawQuery) {
		if key, _, ok := decodePair(pair); ok && key == param {
			if !placed {
				pairs = append(pairs, encoded)
				placed = true
			}
			continue
		}
		pairs = append(pairs, pair)
	}
	if !placed {
		pairs = append(pairs, encoded)
	}
	next.RawQuery = strings.Join(pairs, "&")
	return next
}

// WithoutToken returns a copy of u with every occurrence of param removed.
func WithoutToken(u *url.URL, param string) *url.URL {
	next := cloneURL(u)

	var pairs []string
	for _, pair := range splitQuery(next.RawQuery) {
		if key, _, ok := decodePair(pair); ok && key == param {
			continue
		}
		pairs = append(pairs, pair)
	}
	next.RawQuery = strings.Join(pairs, "&")
	next.ForceQuery = false
	return next
}

// Link encodes text and returns the address string for it.
func Link(base *url.URL, param, text string) string {
	return WithToken(base, param, Encode(text)).String()
}

// TextFrom decodes the token stored under param. ok is false when the
// parameter is absent; err is a *DecodeError when it is present but bad.
func TextFrom(u *url.URL, param string) (text string, ok bool, err error) {
	token, ok := Token(u, param)
	if !ok {
		return "", false, nil
	}
	text, err = Decode(token)
	return text, true, err
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	next := *u
	if u.User != nil {
		user := *u.User
		next.User = &user
	}
	return &next
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair != "" {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func decodePair(pair string) (key, value string, ok bool) {
	rawKey, rawValue, _ := strings.Cut(pair, "=")
	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return "", "", false
	}
	value, err = url.QueryUnescape(rawValue)
	if err != nil {
		// Keep the raw text so Decode can report what is wrong with it.
		value = rawValue
	}
	return key, value, true
}
