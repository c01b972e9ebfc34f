package permissions

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost lower-cases host and converts it to its ASCII form.
// IPv6 literals lose their brackets.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

// NormalizeURL returns a copy of u in the form URLs are matched in: the host
// normalized and an empty hierarchical path written as "/".
func NormalizeURL(u *url.URL) (*url.URL, error) {
	target := *u
	if u.Host != "" {
		host, err := NormalizeHost(u.Hostname())
		if err != nil {
			return nil, err
		}
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		if port := u.Port(); port != "" {
			host += ":" + port
		}
		target.Host = host
	}
	if target.Opaque == "" && target.Path == "" && target.Host != "" {
		target.Path = "/"
		target.RawPath = ""
	}
	return &target, nil
}

// NormalizePath makes path absolute and clean, the form the filesystem
// adapters check. Wildcard is kept as is.
func NormalizePath(path string) (string, error) {
	if path == Wildcard {
		return path, nil
	}
	return filepath.Abs(path)
}

func hasGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// normalizeHostEntry handles allowlist host entries, which may carry a port
// or be glob patterns. Patterns are only lower-cased.
func normalizeHostEntry(entry string) (string, error) {
	if entry == Wildcard {
		return entry, nil
	}
	if hasGlob(entry) {
		return strings.ToLower(entry), nil
	}
	if h, port, err := net.SplitHostPort(entry); err == nil {
		host, err := NormalizeHost(h)
		if err != nil {
			return "", fmt.Errorf("invalid host %q: %w", entry, err)
		}
		return net.JoinHostPort(host, port), nil
	}
	host, err := NormalizeHost(entry)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", entry, err)
	}
	return host, nil
}

func normalizeURLEntry(entry string) (string, error) {
	if entry == Wildcard {
		return entry, nil
	}
	u, err := url.Parse(entry)
	if err != nil {
		if hasGlob(entry) {
			return entry, nil
		}
		return "", fmt.Errorf("invalid url %q: %w", entry, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q needs a scheme and a host", entry)
	}
	if hasGlob(u.Host) {
		u.Host = strings.ToLower(u.Host)
		return URLKey(u), nil
	}
	normalized, err := NormalizeURL(u)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", entry, err)
	}
	return URLKey(normalized), nil
}

// NormalizeEntry puts an allowlist entry of the given category into the
// form the adapters check against. Entries of other categories are
// returned unchanged.
func NormalizeEntry(category Category, entry string) (string, error) {
	switch category {
	case CategoryURL:
		return normalizeURLEntry(entry)
	case CategoryHost:
		return normalizeHostEntry(entry)
	case CategoryRead, CategoryWrite, CategoryOpen:
		return NormalizePath(entry)
	default:
		return entry, nil
	}
}
