package libsse

import (
	"sync"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
)

// ClientRegistry is a keyed cache of stream clients, one per distinct config
// fingerprint. The composing application owns the registry and passes clients
// around explicitly; acquiring the same config twice yields the same client
// instead of a duplicate stream.
type ClientRegistry struct {
	logger logger

	mu      sync.Mutex
	clients map[uint64]Client
}

func NewClientRegistry(logger logger) *ClientRegistry {
	return &ClientRegistry{
		logger:  logger.WithField("type", "client_registry"),
		clients: make(map[uint64]Client),
	}
}

// Acquire returns the cached client for the config fingerprint, building a
// new one on first use.
func (r *ClientRegistry) Acquire(cfg StreamClientConfig) (Client, error) {
	key, err := fingerprintConfig(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, found := r.clients[key]; found {
		return c, nil
	}

	c, err := NewStreamClient(cfg)
	if err != nil {
		return nil, err
	}

	r.clients[key] = c
	return c, nil
}

// Drop disconnects and evicts the client for the given config. A closed
// client is terminal, so eviction is what allows a fresh Acquire.
func (r *ClientRegistry) Drop(cfg StreamClientConfig) error {
	key, err := fingerprintConfig(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	c, found := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()

	if found {
		c.Disconnect()
	}
	return nil
}

// CloseAll disconnects every cached client and clears the cache.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[uint64]Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
}

func fingerprintConfig(cfg StreamClientConfig) (uint64, error) {
	key, err := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, errors.Wrap(err, "cannot fingerprint client config")
	}
	return key, nil
}
