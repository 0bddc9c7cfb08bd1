// Package sharelink encodes playground buffers into URL-safe share tokens and
// manipulates the query string of the playground address that carries them.
//
// A token is the standard base64 encoding of the text after it has been
// percent-encoded the way a browser's encodeURIComponent does it, so links
// produced in the browser and links produced here are interchangeable.
package sharelink

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

const upperhex = "0123456789ABCDEF"

// Stage identifies which layer of the token failed to decode.
type Stage string

const (
	StageBase64  Stage = "base64"
	StagePercent Stage = "percent"
	StageUTF8    Stage = "utf8"
)

// DecodeError reports a token that does not decode to text. Decode is as
// lenient as the browser's atob and decodeURIComponent, so some tokens
// Encode would never produce still decode.
type DecodeError struct {
	Token string
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sharelink: malformed token (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode returns the share token for text. Invalid UTF-8 sequences are
// replaced with U+FFFD first so that every token decodes.
func Encode(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}
	return base64.StdEncoding.EncodeToString([]byte(escapeComponent(text)))
}

// Decode is the inverse of Encode. Like the browser it also accepts line
// breaks inside the base64, lower-case hex and escaped unreserved characters,
// so Encode(Decode(t)) may differ from t.
func Decode(token string) (string, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil {
		return "", &DecodeError{Token: token, Stage: StageBase64, Err: err}
	}

	text, err := unescapeComponent(string(raw))
	if err != nil {
		return "", &DecodeError{Token: token, Stage: StagePercent, Err: err}
	}

	if !utf8.ValidString(text) {
		return "", &DecodeError{Token: token, Stage: StageUTF8, Err: fmt.Errorf("decoded text is not valid UTF-8")}
	}
	return text, nil
}

// unreserved reports whether encodeURIComponent leaves c as is.
func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

func escapeComponent(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// unescapeComponent only accepts what escapeComponent emits: unreserved
// characters and %XX escapes. Lower-case hex digits are tolerated.
func unescapeComponent(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			if i+2 >= len(s) {
				return "", fmt.Errorf("truncated escape at offset %d", i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("invalid escape %q at offset %d", s[i:i+3], i)
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		case unreserved(c):
			b.WriteByte(c)
		default:
			return "", fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
