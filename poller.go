package libsse

import (
	"context"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

const (
	defaultPollBaseInterval = 5 * time.Second
	defaultPollMaxInterval  = 2 * time.Minute
	defaultPollGrowFactor   = 1.5
	defaultPollErrorFactor  = 2.0
)

type (
	// FetchFunc fetches the current state of the polled resource.
	FetchFunc func(ctx context.Context) (any, error)

	// ChangeHandler is invoked with the fetched result whenever its
	// fingerprint differs from the previous poll.
	ChangeHandler func(result any)

	PollerConfig struct {
		BaseInterval time.Duration
		MaxInterval  time.Duration
		// GrowFactor multiplies the interval after an unchanged result.
		GrowFactor float64
		// ErrorFactor multiplies the interval after a failed fetch. Errors
		// are a stronger signal to back off than unchanged data.
		ErrorFactor float64
	}
)

func (cfg PollerConfig) withDefaults() PollerConfig {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = defaultPollBaseInterval
	}
	if cfg.MaxInterval < cfg.BaseInterval {
		cfg.MaxInterval = defaultPollMaxInterval
	}
	if cfg.GrowFactor <= 1 {
		cfg.GrowFactor = defaultPollGrowFactor
	}
	if cfg.ErrorFactor <= 1 {
		cfg.ErrorFactor = defaultPollErrorFactor
	}
	return cfg
}

// AdaptivePoller periodically invokes a fetch function and adapts its
// interval to how alive the resource is: unchanged results stretch the delay
// multiplicatively up to the cap, changed results relax it back toward the
// base (halving the excess, never snapping, to avoid oscillation), and fetch
// errors back off harder than idle data. Change detection uses a structural
// fingerprint of the result.
type AdaptivePoller struct {
	logger   logger
	cfg      PollerConfig
	fetch    FetchFunc
	onChange ChangeHandler

	mu          sync.Mutex
	current     time.Duration
	fingerprint uint64
	fingerSet   bool
	running     bool
	cancel      context.CancelFunc
}

func NewAdaptivePoller(
	logger logger,
	cfg PollerConfig,
	fetch FetchFunc,
	onChange ChangeHandler,
) *AdaptivePoller {
	cfg = cfg.withDefaults()
	return &AdaptivePoller{
		logger:   logger.WithField("type", "adaptive_poller"),
		cfg:      cfg,
		fetch:    fetch,
		onChange: onChange,
		current:  cfg.BaseInterval,
	}
}

// Start begins polling after one base interval. It reports false when the
// poller is already running.
func (p *AdaptivePoller) Start(ctx context.Context) bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false
	}
	p.running = true
	p.current = p.cfg.BaseInterval
	pctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(pctx)

	return true
}

// Stop cancels the pending timer. Idempotent.
func (p *AdaptivePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.cancel()
}

// Reset snaps the interval back to the base and forgets the last fingerprint.
func (p *AdaptivePoller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.cfg.BaseInterval
	p.fingerSet = false
}

// CurrentInterval returns the delay before the next fetch.
func (p *AdaptivePoller) CurrentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current
}

func (p *AdaptivePoller) run(ctx context.Context) {
	timer := time.NewTimer(p.CurrentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, err := p.fetch(ctx)
		if ctx.Err() != nil {
			return
		}

		next, changed := p.advance(result, err)
		if changed && p.onChange != nil {
			p.onChange(result)
		}

		timer.Reset(next)
	}
}

// advance applies the adaptation rules to one fetch outcome and returns the
// next delay plus whether the result changed.
func (p *AdaptivePoller) advance(result any, err error) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.logger.Warnf("poll fetch failed: %s", err)
		p.current = p.clamp(time.Duration(float64(p.current) * p.cfg.ErrorFactor))
		return p.current, false
	}

	fp, hashErr := hashstructure.Hash(result, hashstructure.FormatV2, nil)
	if hashErr != nil {
		// Unhashable results cannot be deduplicated; treat every poll as changed.
		p.logger.Warnf("cannot fingerprint poll result: %s", hashErr)
	}

	changed := hashErr != nil || !p.fingerSet || fp != p.fingerprint
	if hashErr == nil {
		p.fingerprint = fp
		p.fingerSet = true
	}

	if changed {
		p.current = p.cfg.BaseInterval + (p.current-p.cfg.BaseInterval)/2
	} else {
		p.current = p.clamp(time.Duration(float64(p.current) * p.cfg.GrowFactor))
	}

	return p.current, changed
}

func (p *AdaptivePoller) clamp(d time.Duration) time.Duration {
	if d > p.cfg.MaxInterval {
		return p.cfg.MaxInterval
	}
	if d < p.cfg.BaseInterval {
		return p.cfg.BaseInterval
	}
	return d
}
