// Package extractor discovers contact addresses on a web page by combining
// a static fetch, a headless-browser render, and a sitemap lookup.
package extractor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Strategy names one extraction technique.
type Strategy string

// Extraction strategies.
const (
	StrategyStatic   Strategy = "static"
	StrategyRendered Strategy = "rendered"
	StrategySitemap  Strategy = "sitemap"
)

// Mode selects which page strategies run.
type Mode string

// Supported modes.
const (
	ModeStaticOnly   Mode = "static-only"
	ModeRenderedOnly Mode = "rendered-only"
	ModeAuto         Mode = "auto"
)

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStaticOnly, ModeRenderedOnly, ModeAuto:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want static-only, rendered-only or auto)", s)
	}
}

// Candidate is a raw string that looked like an address, tagged with the
// strategy that produced it.
type Candidate struct {
	Raw      string
	Strategy Strategy
}

// DiagnosticKind classifies a non-fatal event.
type DiagnosticKind string

// Diagnostic kinds.
const (
	KindFetchFailure       DiagnosticKind = "fetch_failure"
	KindRenderTimeout      DiagnosticKind = "render_timeout"
	KindSitemapUnavailable DiagnosticKind = "sitemap_unavailable"
	KindDeadlineExceeded   DiagnosticKind = "deadline_exceeded"
	KindNotConfigured      DiagnosticKind = "not_configured"
	KindHint               DiagnosticKind = "hint"
	KindTruncated          DiagnosticKind = "truncated"
)

// Diagnostic records why a strategy found nothing, or advice for the caller.
type Diagnostic struct {
	Strategy Strategy       `json:"strategy,omitempty"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
}

// StrategyReport summarizes one strategy's execution.
type StrategyReport struct {
	Strategy   Strategy      `json:"strategy"`
	Failed     bool          `json:"failed"`
	Candidates int           `json:"candidates"`
	Accepted   int           `json:"accepted"`
	Duration   time.Duration `json:"duration_ns"`
}

// Outcome is what a Source produced for one request. Err is non-nil when
// the strategy could not run to completion; Kind then classifies it.
type Outcome struct {
	Candidates []Candidate
	Err        error
	Kind       DiagnosticKind
	// Body is the raw page, kept for client-rendering hints.
	Body []byte
}

// Source is one extraction strategy. Implementations never panic on
// network trouble; they report it through Outcome.Err.
type Source interface {
	Strategy() Strategy
	Fetch(ctx context.Context, target string, timeout time.Duration) Outcome
}

// Hinter spots pages that are shells for client-side rendering.
type Hinter interface {
	LooksClientRendered(body []byte) bool
}

// Resolver looks up host addresses; *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

func failed(kind DiagnosticKind, err error) Outcome {
	return Outcome{Err: err, Kind: kind}
}

func tag(raw []string, s Strategy) []Candidate {
	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		out = append(out, Candidate{Raw: r, Strategy: s})
	}
	return out
}
