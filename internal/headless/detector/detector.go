// Package detector spots statically served pages that are mostly a
// client-side application shell, where contact details only appear after
// scripts run.
package detector

import "bytes"

const (
	defaultMaxShellBytes = 2048
	scriptSharePercent   = 25
)

// Heuristic flags bodies that likely need a browser to show their content.
type Heuristic struct {
	// MaxShellBytes bounds the size of a body judged by script share alone.
	MaxShellBytes int
}

// NewHeuristic returns a Heuristic. maxShellBytes <= 0 uses 2048.
func NewHeuristic(maxShellBytes int) *Heuristic {
	if maxShellBytes <= 0 {
		maxShellBytes = defaultMaxShellBytes
	}
	return &Heuristic{MaxShellBytes: maxShellBytes}
}

// shellMarkers are mount points and attributes left by common SPA frameworks,
// plus the usual noscript fallback text.
var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("data-v-app"),
	[]byte("enable javascript"),
}

// LooksClientRendered reports whether body resembles an application shell.
func (h *Heuristic) LooksClientRendered(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	lower := bytes.ToLower(trimmed)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return len(trimmed) < h.MaxShellBytes && scriptShare(lower) >= scriptSharePercent
}

// scriptShare returns the percentage of lower covered by <script> elements.
// An unterminated element covers the rest of the body.
func scriptShare(lower []byte) int {
	var covered int
	rest := lower
	for {
		start := bytes.Index(rest, []byte("<script"))
		if start < 0 {
			break
		}
		end := bytes.Index(rest[start:], []byte("</script>"))
		if end < 0 {
			covered += len(rest) - start
			break
		}
		end += start + len("</script>")
		covered += end - start
		rest = rest[end:]
	}
	return covered * 100 / len(lower)
}
