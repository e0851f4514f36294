// Package email validates, canonicalizes, and categorizes contact addresses.
package email

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Category labels the likely purpose of a mailbox.
type Category string

// Known categories. Keyword categories are evaluated in the order returned by DefaultRules.
const (
	CategorySales     Category = "sales"
	CategorySupport   Category = "support"
	CategoryInfo      Category = "info"
	CategoryAdmin     Category = "admin"
	CategoryMarketing Category = "marketing"
	CategoryHR        Category = "hr"
	CategoryPersonal  Category = "personal"
	CategoryGeneral   Category = "general"
)

// Entry is one accepted address in a result set.
type Entry struct {
	Address  string   `json:"email"`
	Domain   string   `json:"domain"`
	Category Category `json:"category"`
	SameSite bool     `json:"same_site"`
}

// Canonical lowercases and trims an address. Two addresses are the same
// contact when their canonical forms are equal.
func Canonical(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// LocalPart returns the portion of addr before the last '@'.
func LocalPart(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// Domain returns the portion of addr after the last '@'.
func Domain(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// SameSite reports whether addr is hosted under the same registrable domain as host.
func SameSite(addr, host string) bool {
	domain := Domain(Canonical(addr))
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if domain == "" || host == "" {
		return false
	}
	a, errA := publicsuffix.EffectiveTLDPlusOne(domain)
	b, errB := publicsuffix.EffectiveTLDPlusOne(host)
	if errA != nil || errB != nil {
		return domain == host
	}
	return a == b
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategorySales, CategorySupport, CategoryInfo, CategoryAdmin,
		CategoryMarketing, CategoryHR, CategoryPersonal, CategoryGeneral,
	}
}
