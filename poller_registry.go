package libsse

import (
	"context"
	"sync"
)

// PollerRegistry deduplicates pollers by a caller-supplied key, so re-entrant
// UI code cannot spawn two pollers for the same logical resource. Safe for
// concurrent Start/Stop.
type PollerRegistry struct {
	logger logger

	mu      sync.Mutex
	pollers map[string]*AdaptivePoller
}

func NewPollerRegistry(logger logger) *PollerRegistry {
	return &PollerRegistry{
		logger:  logger.WithField("type", "poller_registry"),
		pollers: make(map[string]*AdaptivePoller),
	}
}

// Start creates and starts a poller under the given key. When a poller for
// that key is already running, Start is a no-op returning the existing poller
// and false.
func (r *PollerRegistry) Start(
	ctx context.Context,
	key string,
	cfg PollerConfig,
	fetch FetchFunc,
	onChange ChangeHandler,
) (*AdaptivePoller, bool) {
	r.mu.Lock()
	if p, found := r.pollers[key]; found {
		r.mu.Unlock()
		r.logger.Debugf("poller %q already running", key)
		return p, false
	}

	p := NewAdaptivePoller(r.logger, cfg, fetch, onChange)
	r.pollers[key] = p
	r.mu.Unlock()

	p.Start(ctx)

	return p, true
}

// Get returns the poller registered under key, if any.
func (r *PollerRegistry) Get(key string) (*AdaptivePoller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.pollers[key]
	return p, found
}

// Stop halts the poller under key for every holder of its reference and
// removes it from the registry.
func (r *PollerRegistry) Stop(key string) bool {
	r.mu.Lock()
	p, found := r.pollers[key]
	delete(r.pollers, key)
	r.mu.Unlock()

	if !found {
		return false
	}

	p.Stop()
	return true
}

// ResetAll stops every registered poller and clears the registry, so no timer
// outlives its owner on shutdown.
func (r *PollerRegistry) ResetAll() {
	r.mu.Lock()
	pollers := r.pollers
	r.pollers = make(map[string]*AdaptivePoller)
	r.mu.Unlock()

	for key, p := range pollers {
		r.logger.Debugf("stopping poller %q", key)
		p.Stop()
	}
}
