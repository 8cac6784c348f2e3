package access

import (
	"errors"
	"sync"

	"github.com/cuemby/warden/pkg/graph"
)

var (
	// ErrNotFound indicates a referenced primary element that does not exist
	// (strict mode only)
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate add (strict mode only)
	ErrAlreadyExists = errors.New("already exists")

	// ErrCycle indicates a group mapping that would create a directed cycle;
	// surfaced in every mode
	ErrCycle = graph.ErrCycle
)

// Outcome reports what a mutation did to the model
type Outcome int

const (
	// Applied means the model changed and events were generated
	Applied Outcome = iota
	// NoOpAlreadyPresent means the element was already present
	NoOpAlreadyPresent
	// NoOpAbsent means the element was already absent
	NoOpAbsent
)

// ComponentAccess pairs an application component with an access level
type ComponentAccess struct {
	Component string `json:"applicationComponent"`
	Access    string `json:"accessLevel"`
}

// EntityRef names an entity within its entity type
type EntityRef struct {
	EntityType string `json:"entityType"`
	Entity     string `json:"entity"`
}

// Manager is the single source of truth for the authorization model inside
// one shard: the reachability graph of users and groups plus the component
// and entity mapping tables.
//
// Concurrency follows a single-writer many-reader discipline: every mutation
// takes the writer lock, every query a reader lock. In the default
// dependency-free mode, duplicate adds and absent removes are silent no-ops
// and mutations referencing absent primary elements create them first,
// expressed as prepended events so replay reproduces the same end state on
// any shard. Strict mode surfaces those conditions as errors instead.
type Manager struct {
	mu sync.RWMutex

	graph          *graph.Graph
	userComponents map[string]map[ComponentAccess]struct{}
	grpComponents  map[string]map[ComponentAccess]struct{}
	entities       map[string]map[string]struct{}
	userEntities   map[string]map[EntityRef]struct{}
	grpEntities    map[string]map[EntityRef]struct{}

	strict bool
}

// Option configures a Manager
type Option func(*Manager)

// WithStrictMode surfaces Conflict and NotFound conditions instead of
// suppressing them; dependency prepending is disabled
func WithStrictMode() Option {
	return func(m *Manager) {
		m.strict = true
	}
}

// NewManager creates an empty access manager in dependency-free mode
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		graph:          graph.New(),
		userComponents: make(map[string]map[ComponentAccess]struct{}),
		grpComponents:  make(map[string]map[ComponentAccess]struct{}),
		entities:       make(map[string]map[string]struct{}),
		userEntities:   make(map[string]map[EntityRef]struct{}),
		grpEntities:    make(map[string]map[EntityRef]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strict reports whether the manager runs in strict mode
func (m *Manager) Strict() bool {
	return m.strict
}
