package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL validates raw and returns it as an absolute URL.
// A missing scheme defaults to http. Scheme and host are lowercased, default
// ports and fragments are dropped.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidURL)
	}
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = "http:" + raw
	case !hasScheme(raw):
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Remove default ports
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Host = strings.TrimSuffix(u.Host, ":")

	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// hasScheme reports whether raw starts with "scheme:". A host:port pair such as
// "example.com:8080" is not a scheme, and neither is a bare "localhost:3000"
// or a dotted host with an empty port like "example.com:".
func hasScheme(raw string) bool {
	i := strings.Index(raw, ":")
	if i <= 0 {
		return false
	}
	for j, c := range raw[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	rest := raw[i+1:]
	if strings.HasPrefix(rest, "//") {
		return true
	}
	// "host:port" has only digits (and maybe a path) after the colon.
	port := rest
	if k := strings.IndexAny(port, "/?#"); k >= 0 {
		port = port[:k]
	}
	if strings.Trim(port, "0123456789") != "" {
		return true
	}
	return port == "" && !strings.Contains(raw[:i], ".")
}

// ValidateDomainLabel reports whether label names exactly one directory below
// the artifact root.
func ValidateDomainLabel(label string) error {
	switch {
	case label == "", label == ".", label == "..":
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	case strings.ContainsAny(label, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidLabel, label)
	}
	return nil
}
