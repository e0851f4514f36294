package extractor

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/JakeFAU/contactfinder/internal/email"
)

// Result is the immutable outcome of one extraction request.
type Result struct {
	url         string
	mode        Mode
	entries     []email.Entry
	index       map[string]int
	reports     []StrategyReport
	diagnostics []Diagnostic
	elapsed     time.Duration
}

// URL returns the normalized target.
func (r *Result) URL() string { return r.url }

// Mode returns the mode the request ran with.
func (r *Result) Mode() Mode { return r.mode }

// Elapsed returns the wall time of the request.
func (r *Result) Elapsed() time.Duration { return r.elapsed }

// Len returns the number of unique addresses.
func (r *Result) Len() int { return len(r.entries) }

// Emails returns the entries sorted by address.
func (r *Result) Emails() []email.Entry {
	return slices.Clone(r.entries)
}

// Addresses returns the sorted addresses.
func (r *Result) Addresses() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Address
	}
	return out
}

// Category looks up an address case-insensitively.
func (r *Result) Category(addr string) (email.Category, bool) {
	i, ok := r.index[email.Canonical(addr)]
	if !ok {
		return "", false
	}
	return r.entries[i].Category, true
}

// ByCategory groups sorted addresses by category. Empty categories are omitted.
func (r *Result) ByCategory() map[email.Category][]string {
	out := make(map[email.Category][]string)
	for _, e := range r.entries {
		out[e.Category] = append(out[e.Category], e.Address)
	}
	return out
}

// Reports returns per-strategy summaries in execution order.
func (r *Result) Reports() []StrategyReport {
	return slices.Clone(r.reports)
}

// Report returns the summary for one strategy, if it ran.
func (r *Result) Report(s Strategy) (StrategyReport, bool) {
	for _, rep := range r.reports {
		if rep.Strategy == s {
			return rep, true
		}
	}
	return StrategyReport{}, false
}

// Counts returns accepted-candidate counts per strategy that ran.
func (r *Result) Counts() map[Strategy]int {
	out := make(map[Strategy]int, len(r.reports))
	for _, rep := range r.reports {
		out[rep.Strategy] = rep.Accepted
	}
	return out
}

// Diagnostics returns failures and hints in the order they were recorded.
func (r *Result) Diagnostics() []Diagnostic {
	return slices.Clone(r.diagnostics)
}

// MarshalJSON renders the result for API responses.
func (r *Result) MarshalJSON() ([]byte, error) {
	entries := r.entries
	if entries == nil {
		entries = []email.Entry{}
	}
	diagnostics := r.diagnostics
	if diagnostics == nil {
		diagnostics = []Diagnostic{}
	}
	return json.Marshal(struct {
		URL         string           `json:"url"`
		Mode        Mode             `json:"mode"`
		Emails      []email.Entry    `json:"emails"`
		Strategies  []StrategyReport `json:"strategies"`
		Diagnostics []Diagnostic     `json:"diagnostics"`
		ElapsedMS   int64            `json:"elapsed_ms"`
	}{
		URL:         r.url,
		Mode:        r.mode,
		Emails:      entries,
		Strategies:  r.reports,
		Diagnostics: diagnostics,
		ElapsedMS:   r.elapsed.Milliseconds(),
	})
}
