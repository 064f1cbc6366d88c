package chat

import "time"

// RetryAfter is the wait suggested after a 429.
const RetryAfter = 60 * time.Second

// RateLimit is the transient signal shown after a 429.
type RateLimit struct {
	Limited    bool
	Message    string
	RetryAfter time.Duration
	Until      time.Time
}

func newRateLimit(msg string, now time.Time) RateLimit {
	return RateLimit{
		Limited:    true,
		Message:    msg,
		RetryAfter: RetryAfter,
		Until:      now.Add(RetryAfter),
	}
}

// Remaining is the countdown left at now, never negative.
func (r RateLimit) Remaining(now time.Time) time.Duration {
	if !r.Limited {
		return 0
	}
	return max(r.Until.Sub(now), 0)
}

// Expired reports whether the countdown has reached zero.
func (r RateLimit) Expired(now time.Time) bool {
	return r.Limited && !now.Before(r.Until)
}
