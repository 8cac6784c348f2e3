package shard

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/types"
)

// ErrNoRoute indicates a hash code fell outside every configured range,
// which can only happen with an invalid configuration
var ErrNoRoute = errors.New("no shard route for hash code")

// Factory builds a client for one shard configuration. Split out so tests
// can inject in-process fakes.
type Factory func(cfg types.ShardConfiguration) (client.API, error)

// DefaultFactory builds HTTP clients
func DefaultFactory(cfg types.ShardConfiguration) (client.API, error) {
	return client.New(client.Config{Endpoint: cfg.Endpoint, Credential: cfg.Credential}), nil
}

type route struct {
	cfg types.ShardConfiguration
	api client.API
}

// Manager holds the routing table from (dimension, hash code) to shard
// clients. Client handles are pooled per endpoint and survive configuration
// refreshes that keep the endpoint.
type Manager struct {
	factory Factory

	mu     sync.RWMutex
	routes map[types.DataElementKind][]route
	pool   map[string]client.API
}

// NewManager creates a manager with no routes. Call Refresh before routing.
func NewManager(factory Factory) *Manager {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Manager{
		factory: factory,
		routes:  make(map[types.DataElementKind][]route),
		pool:    make(map[string]client.API),
	}
}

// Refresh atomically swaps in a new routing table built from set. Clients
// for endpoints still present are reused; clients for endpoints that
// disappeared are closed.
func (m *Manager) Refresh(set *types.ShardConfigurationSet) error {
	if err := set.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pool := make(map[string]client.API)
	routes := make(map[types.DataElementKind][]route)
	for _, kind := range types.DataElementKinds {
		for _, cfg := range set.ForKind(kind) {
			api, ok := pool[cfg.Endpoint]
			if !ok {
				api, ok = m.pool[cfg.Endpoint]
				if !ok {
					var err error
					api, err = m.factory(cfg)
					if err != nil {
						return fmt.Errorf("creating client for %s: %w", cfg.Endpoint, err)
					}
				}
				pool[cfg.Endpoint] = api
			}
			routes[kind] = append(routes[kind], route{cfg: cfg, api: api})
		}
	}

	for endpoint, api := range m.pool {
		if _, kept := pool[endpoint]; !kept {
			if err := api.Close(); err != nil {
				logger := log.WithComponent("shard")
				logger.Warn().Err(err).Str("endpoint", endpoint).Msg("closing evicted client")
			}
		}
	}

	m.routes = routes
	m.pool = pool
	return nil
}

// RouteOne returns the client owning element's hash in the given dimension
func (m *Manager) RouteOne(kind types.DataElementKind, element string) (client.API, error) {
	return m.RouteHash(kind, types.HashElement(element))
}

// RouteHash returns the client owning a hash code in the given dimension
func (m *Manager) RouteHash(kind types.DataElementKind, hash int32) (client.API, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	routes := m.routes[kind]
	i := sort.Search(len(routes), func(i int) bool {
		return routes[i].cfg.RangeEnd >= hash
	})
	if i >= len(routes) || !routes[i].cfg.Contains(hash) {
		return nil, fmt.Errorf("%w: kind %s hash %d", ErrNoRoute, kind, hash)
	}
	return routes[i].api, nil
}

// RouteAll returns one client per distinct endpoint serving the given
// dimension, for operations that must touch every shard of that dimension
func (m *Manager) RouteAll(kind types.DataElementKind) []client.API {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var apis []client.API
	for _, r := range m.routes[kind] {
		if _, dup := seen[r.cfg.Endpoint]; dup {
			continue
		}
		seen[r.cfg.Endpoint] = struct{}{}
		apis = append(apis, r.api)
	}
	return apis
}

// Configuration returns a snapshot of the current routing table
func (m *Manager) Configuration() *types.ShardConfigurationSet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := &types.ShardConfigurationSet{}
	for _, kind := range types.DataElementKinds {
		for _, r := range m.routes[kind] {
			set.Items = append(set.Items, r.cfg)
		}
	}
	return set
}

// Close closes every pooled client
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, api := range m.pool {
		if err := api.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.routes = make(map[types.DataElementKind][]route)
	m.pool = make(map[string]client.API)
	return firstErr
}
