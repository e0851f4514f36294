package extractor

import "time"

// runsStatic reports whether mode starts with the static fetch.
func runsStatic(mode Mode) bool {
	return mode == ModeStaticOnly || mode == ModeAuto
}

// shouldRender decides whether the browser render runs, given how many
// unique addresses the static fetch accepted.
func shouldRender(mode Mode, staticAccepted, threshold int) bool {
	switch mode {
	case ModeRenderedOnly:
		return true
	case ModeAuto:
		return staticAccepted < threshold
	default:
		return false
	}
}

// allFailed reports whether at least one strategy ran and every one that
// ran failed.
func allFailed(reports []StrategyReport) bool {
	if len(reports) == 0 {
		return false
	}
	for _, r := range reports {
		if !r.Failed {
			return false
		}
	}
	return true
}

// capTimeout bounds a strategy timeout by the time left before deadline.
// It returns false when no time is left.
func capTimeout(timeout time.Duration, deadline time.Time, hasDeadline bool, now time.Time) (time.Duration, bool) {
	if !hasDeadline {
		return timeout, true
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if timeout <= 0 || timeout > remaining {
		return remaining, true
	}
	return timeout, true
}

// hints suggests remedies for an empty or thin result.
func hints(mode Mode, found int, staticRan, renderRan bool, shell bool) []Diagnostic {
	var out []Diagnostic
	if staticRan && !renderRan && shell {
		out = append(out, Diagnostic{
			Strategy: StrategyStatic,
			Kind:     KindHint,
			Message:  "page looks client-rendered; rendered-only mode may find more",
		})
	}
	if found == 0 && mode == ModeStaticOnly && !shell {
		out = append(out, Diagnostic{
			Kind:    KindHint,
			Message: "nothing found in static html; try auto or rendered-only mode",
		})
	}
	return out
}
