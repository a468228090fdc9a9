package libsse

import (
	"math"
	"sync"
	"time"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultMaxBackoff           = 30 * time.Second
)

type backoffCalculator func(attempts int) (ttw time.Duration)

// ReconnectPolicy decides whether and when a failed or ended stream may retry.
// Attempts reset to zero on every successful connection; once the maximum is
// exceeded no further attempt is scheduled and the caller must surface a
// terminal error. At most one retry is pending at a time, and it is always
// cancelled before a new one is scheduled or on Cancel.
type ReconnectPolicy struct {
	logger      logger
	calculator  backoffCalculator
	maxAttempts int
	maxBackoff  time.Duration

	mu       sync.Mutex
	attempts int
	pending  *time.Timer
}

func NewReconnectPolicy(
	logger logger,
	calculator backoffCalculator,
	maxAttempts int,
	maxBackoff time.Duration,
) *ReconnectPolicy {
	if calculator == nil {
		calculator = ExponentialBackoffSeconds
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxReconnectAttempts
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &ReconnectPolicy{
		logger:      logger.WithField("type", "reconnect_policy"),
		calculator:  calculator,
		maxAttempts: maxAttempts,
		maxBackoff:  maxBackoff,
	}
}

// Schedule counts a failed attempt and, when the maximum has not been
// exceeded, arms a timer to run fn after the backoff delay. It returns false
// when attempts are exhausted, in which case fn will never run.
func (p *ReconnectPolicy) Schedule(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelPending()

	p.attempts++
	if p.attempts > p.maxAttempts {
		p.logger.Warnf("giving up after %d attempts", p.maxAttempts)
		return false
	}

	ttw := p.calculator(p.attempts)
	if ttw > p.maxBackoff {
		ttw = p.maxBackoff
	}

	p.logger.Infof("retrying to connect in %s (attempt %d/%d)", ttw, p.attempts, p.maxAttempts)
	p.pending = time.AfterFunc(ttw, fn)

	return true
}

// Reset clears the attempt counter. Called on every successful connection.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts = 0
}

// Cancel stops any pending retry.
func (p *ReconnectPolicy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelPending()
}

// Attempts returns the number of consecutive failed attempts so far.
func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempts
}

func (p *ReconnectPolicy) cancelPending() {
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

func ExponentialBackoff(attempts int) float64 {
	return (math.Pow(2.0, float64(attempts)) - 1) / 2
}

func ExponentialBackoffSeconds(attempts int) time.Duration {
	return time.Duration(ExponentialBackoff(attempts)) * time.Second
}
