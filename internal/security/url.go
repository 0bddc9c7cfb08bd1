// Package security provides shared validation for addresses the playground
// reflects back to clients.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidatePublicURL checks the configured base address that share links are
// built on. It must be an absolute http(s) URL without credentials or a
// fragment, since the token is appended to its query string.
func ValidatePublicURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow http and https schemes
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("URL must have a host")
	}

	if parsed.User != nil {
		return fmt.Errorf("URL must not carry credentials")
	}

	if parsed.Fragment != "" {
		return fmt.Errorf("URL must not have a fragment")
	}

	return nil
}

// ParseLocation parses the page address a browser session reports and checks
// that it points at this server. host is the Host header of the request that
// opened the session.
func ParseLocation(rawURL, host string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("location scheme must be http or https, got %q", parsed.Scheme)
	}

	if !strings.EqualFold(parsed.Host, host) {
		return nil, fmt.Errorf("location host %q does not match %q", parsed.Host, host)
	}

	if parsed.User != nil {
		return nil, fmt.Errorf("location must not carry credentials")
	}

	return parsed, nil
}
