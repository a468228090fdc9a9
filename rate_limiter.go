package libsse

import "time"

const (
	defaultRateMinGap     = 50 * time.Millisecond
	defaultRateBurstLimit = 10
)

// RateLimiter throttles sustained bursts of frames. Frames arriving closer
// together than minGap grow a burst counter; once the counter passes the
// ceiling further frames are rejected until the gap widens again, which resets
// the counter. Short legitimate bursts pass untouched, only sustained density
// is dropped. Confined to the read loop; not goroutine-safe.
type RateLimiter struct {
	minGap     time.Duration
	burstLimit int
	last       time.Time
	burst      int
}

func NewRateLimiter(minGap time.Duration, burstLimit int) *RateLimiter {
	if minGap <= 0 {
		minGap = defaultRateMinGap
	}
	if burstLimit <= 0 {
		burstLimit = defaultRateBurstLimit
	}
	return &RateLimiter{
		minGap:     minGap,
		burstLimit: burstLimit,
	}
}

// Admit reports whether a frame observed at now may pass. The timestamp only
// advances on admission, so a flood is measured against the last frame that
// actually got through.
func (r *RateLimiter) Admit(now time.Time) bool {
	if !r.last.IsZero() && now.Sub(r.last) < r.minGap {
		r.burst++
		if r.burst > r.burstLimit {
			return false
		}
	} else {
		r.burst = 0
	}

	r.last = now
	return true
}
