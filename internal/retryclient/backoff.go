package retryclient

import "time"

// outcome classifies a single attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRateLimited
	outcomeTransient
	outcomeFatal
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "ok"
	case outcomeRateLimited:
		return "rate_limited"
	case outcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// schedule tracks attempts made for one logical call and yields the delay
// before the next attempt. Rate limits back off linearly, transient
// failures exponentially, and anything else ends the call.
type schedule struct {
	maxAttempts    int
	baseDelay      time.Duration
	rateLimitDelay time.Duration
	maxDelay       time.Duration
	attempts       int
}

// record registers the outcome of the attempt just made. It reports the
// delay to wait and whether another attempt is allowed.
func (s *schedule) record(o outcome) (time.Duration, bool) {
	s.attempts++
	if o != outcomeRateLimited && o != outcomeTransient {
		return 0, false
	}
	if s.attempts >= s.maxAttempts {
		return 0, false
	}
	var delay time.Duration
	if o == outcomeRateLimited {
		delay = s.rateLimitDelay * time.Duration(s.attempts)
	} else {
		delay = s.baseDelay << (s.attempts - 1)
	}
	if s.maxDelay > 0 && delay > s.maxDelay {
		delay = s.maxDelay
	}
	return delay, true
}
