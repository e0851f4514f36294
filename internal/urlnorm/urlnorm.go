// Package urlnorm turns user-supplied targets into absolute, fetchable URLs.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultMaxLength bounds accepted URLs.
const DefaultMaxLength = 2048

var (
	// ErrInvalidURL is returned when the input cannot be made into an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrDisallowedTarget is returned when the target resolves to a loopback or private address.
	ErrDisallowedTarget = errors.New("disallowed target")
)

// Options controls normalization.
type Options struct {
	MaxLength       int
	RestrictPrivate bool
	// LookupIP, when set alongside RestrictPrivate, resolves host names so a
	// public name pointing at a private address is rejected too. Lookup
	// failures are ignored; the fetch reports unreachable hosts.
	LookupIP func(host string) ([]net.IP, error)
}

// Normalize prepends https:// when no scheme is present and validates the result.
// Without LookupIP it performs no network I/O and host checks apply to literal
// IPs and localhost names only.
func Normalize(raw string, opts Options) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if len(s) > maxLen {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidURL, maxLen)
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme
	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " \t") {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if net.ParseIP(host) == nil && !strings.Contains(host, ".") && !isLocalName(host) {
		return nil, fmt.Errorf("%w: host %q is not a domain name", ErrInvalidURL, host)
	}
	if opts.RestrictPrivate {
		if disallowedHost(host) {
			return nil, fmt.Errorf("%w: %s", ErrDisallowedTarget, host)
		}
		if ip := resolvesPrivate(host, opts.LookupIP); ip != nil {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrDisallowedTarget, host, ip)
		}
	}
	return u, nil
}

// String is Normalize returning the URL's string form.
func String(raw string, opts Options) (string, error) {
	u, err := Normalize(raw, opts)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Domain returns the bare host of a URL or domain-ish input: scheme, a
// leading "www." and any path are removed.
func Domain(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	return strings.TrimPrefix(s, "www.")
}

func isLocalName(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

func disallowedHost(host string) bool {
	if isLocalName(host) {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && disallowedIP(ip)
}

func disallowedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// resolvesPrivate returns the first disallowed address host resolves to.
func resolvesPrivate(host string, lookup func(string) ([]net.IP, error)) net.IP {
	if lookup == nil || net.ParseIP(host) != nil {
		return nil
	}
	ips, err := lookup(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if disallowedIP(ip) {
			return ip
		}
	}
	return nil
}
