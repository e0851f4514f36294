package email

import (
	"regexp"
	"strings"

	emailaddress "github.com/mcnijman/go-emailaddress"
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// DefaultExcludedDomains lists domains whose addresses are never contacts.
func DefaultExcludedDomains() []string {
	return []string{
		"example.com", "test.com", "domain.com", "yoursite.com", "sentry.io",
		"google.com", "facebook.com", "twitter.com", "linkedin.com", "instagram.com",
		"youtube.com", "wordpress.com", "github.com", "stackoverflow.com", "reddit.com",
	}
}

// DefaultFakePatterns lists substrings that mark placeholder or unattended mailboxes.
func DefaultFakePatterns() []string {
	return []string{
		"noreply", "no-reply", "donotreply", "test@",
		"admin@example", "user@example", "contact@example", "webmaster@example", "info@example",
		"@example.com", "sample@", "demo@", "placeholder@",
	}
}

// Validator decides whether a raw string is a plausible contact address.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	excluded map[string]struct{}
	fake     []string
}

// NewValidator builds a Validator. Domains compare case-insensitively and
// fake patterns match as substrings of the lowercased address.
func NewValidator(excludedDomains, fakePatterns []string) *Validator {
	excluded := make(map[string]struct{}, len(excludedDomains))
	for _, d := range excludedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			excluded[d] = struct{}{}
		}
	}
	fake := make([]string, 0, len(fakePatterns))
	for _, p := range fakePatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			fake = append(fake, p)
		}
	}
	return &Validator{excluded: excluded, fake: fake}
}

// NewDefaultValidator returns a Validator using the default exclusion lists.
func NewDefaultValidator() *Validator {
	return NewValidator(DefaultExcludedDomains(), DefaultFakePatterns())
}

// Valid reports whether raw is syntactically an address, is not on an
// excluded domain, and does not look like a placeholder.
func (v *Validator) Valid(raw string) bool {
	addr := strings.TrimSpace(raw)
	if !addressPattern.MatchString(addr) {
		return false
	}
	parsed, err := emailaddress.Parse(addr)
	if err != nil {
		return false
	}
	if _, ok := v.excluded[strings.ToLower(parsed.Domain)]; ok {
		return false
	}
	lower := strings.ToLower(addr)
	for _, p := range v.fake {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// Filter returns the canonical forms of the valid candidates, deduplicated,
// in first-seen order.
func (v *Validator) Filter(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !v.Valid(c) {
			continue
		}
		canon := Canonical(c)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out
}
