package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/pause"
	"github.com/cuemby/warden/pkg/trip"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// Service is the operation surface a node exposes over REST. Writer nodes
// serve it from their local manager; router and coordinator nodes forward.
type Service interface {
	AddUser(ctx context.Context, user string) error
	RemoveUser(ctx context.Context, user string) error
	AddGroup(ctx context.Context, group string) error
	RemoveGroup(ctx context.Context, group string) error
	AddUserToGroupMapping(ctx context.Context, user, group string) error
	RemoveUserToGroupMapping(ctx context.Context, user, group string) error
	AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error
	RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error
	AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error
	RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error
	AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error
	RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error
	AddEntityType(ctx context.Context, entityType string) error
	RemoveEntityType(ctx context.Context, entityType string) error
	AddEntity(ctx context.Context, entityType, entity string) error
	RemoveEntity(ctx context.Context, entityType, entity string) error
	AddUserToEntity(ctx context.Context, user, entityType, entity string) error
	RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error
	AddGroupToEntity(ctx context.Context, group, entityType, entity string) error
	RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error

	ContainsUser(ctx context.Context, user string) (bool, error)
	ContainsGroup(ctx context.Context, group string) (bool, error)
	ContainsEntityType(ctx context.Context, entityType string) (bool, error)
	ContainsEntity(ctx context.Context, entityType, entity string) (bool, error)
	GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error)
	GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error)
	GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error)
	HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error)
	GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error)
	ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error)
	ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error)
	EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error)
	EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error)
}

// MappingReader serves the direct mapping listings only local nodes hold
type MappingReader interface {
	GetUserToComponentAccessMappings(ctx context.Context, user string) ([]access.ComponentAccess, error)
	GetGroupToComponentAccessMappings(ctx context.Context, group string) ([]access.ComponentAccess, error)
	GetUserToEntityMappings(ctx context.Context, user, entityType string) ([]access.EntityRef, error)
	GetGroupToEntityMappings(ctx context.Context, group, entityType string) ([]access.EntityRef, error)
}

// EventLog is the event surface of writer nodes: batch ingest for
// dual-write and backfill, cache tailing for readers
type EventLog interface {
	ApplyEvents(ctx context.Context, events []*types.Event) error
	EventsSince(priorID uuid.UUID) ([]*types.Event, error)
}

// RangeLog is the hash-range read and delete surface of writer nodes,
// consumed by split orchestrators
type RangeLog interface {
	GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error)
	DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error)
}

// ConfigAdmin is the shard routing configuration surface of coordinator
// nodes
type ConfigAdmin interface {
	LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error)
	SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error
}

// RoutingController is the admin mirroring switch of router nodes
type RoutingController interface {
	RoutingOn()
	RoutingOff()
	IsRoutingOn() bool
}

// StatusFunc reports the node's self-description
type StatusFunc func(ctx context.Context) (*types.NodeStatus, error)

// Config holds configuration for creating a Server
type Config struct {
	ListenAddr string

	// Credential, when set, is required as a bearer token on every request
	// except health and metrics
	Credential string

	// AdminRatePerSecond bounds pause/resume/routing calls; zero uses 5/s
	AdminRatePerSecond float64

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// Server is the REST surface of one node. The optional collaborators are
// nil for roles that do not carry them: readers have no event log, writers
// no routing switch.
type Server struct {
	svc       Service
	mappings  MappingReader
	events    EventLog
	ranges    RangeLog
	configSvc ConfigAdmin
	pauser    *pause.Pauser
	trips     *trip.Switch
	routing   RoutingController
	status    StatusFunc

	cfg     Config
	limiter *rate.Limiter
	httpSrv *http.Server
}

// Option wires an optional collaborator into a Server
type Option func(*Server)

// WithMappings serves the direct mapping listings
func WithMappings(m MappingReader) Option {
	return func(s *Server) { s.mappings = m }
}

// WithEventLog serves the event buffer endpoints
func WithEventLog(e EventLog) Option {
	return func(s *Server) { s.events = e }
}

// WithRangeLog serves the hash-range event endpoints
func WithRangeLog(r RangeLog) Option {
	return func(s *Server) { s.ranges = r }
}

// WithConfigAdmin serves the shard configuration endpoints
func WithConfigAdmin(c ConfigAdmin) Option {
	return func(s *Server) { s.configSvc = c }
}

// WithPauser gates requests at the pause checkpoint
func WithPauser(p *pause.Pauser) Option {
	return func(s *Server) { s.pauser = p }
}

// WithTripSwitch rejects requests once the switch actuates
func WithTripSwitch(t *trip.Switch) Option {
	return func(s *Server) { s.trips = t }
}

// WithRouting serves the routing admin switch
func WithRouting(r RoutingController) Option {
	return func(s *Server) { s.routing = r }
}

// NewServer creates a server for one node role
func NewServer(svc Service, status StatusFunc, cfg Config, opts ...Option) *Server {
	if cfg.AdminRatePerSecond == 0 {
		cfg.AdminRatePerSecond = 5
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		svc:     svc,
		status:  status,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.AdminRatePerSecond), int(cfg.AdminRatePerSecond)+1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpSrv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.routes(),
	}
	return s
}

// Handler returns the assembled router, used directly by httptest servers
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.cfg.ListenAddr).Msg("listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(s.instrument)
	r.Use(s.authenticate)

	// Liveness and metrics sit outside the pause and trip gates
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Admin surface: exempt from pause so a paused node can be resumed,
		// rate limited so a runaway client cannot spam control actions
		r.Group(func(r chi.Router) {
			r.Use(s.adminRateLimit)
			r.Get("/status", s.handleStatus)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/routingOn", s.handleRoutingOn)
			r.Post("/routingOff", s.handleRoutingOff)
		})

		// Split machinery surface: exempt from pause, since the orchestrator
		// reads the delta out of a source it has itself paused
		r.Group(func(r chi.Router) {
			r.Use(s.tripCheck)

			if s.events != nil {
				r.Post("/eventBufferItems", s.handleApplyEvents)
				r.Get("/eventBufferItems", s.handleEventsSince)
			}
			if s.ranges != nil {
				r.Get("/events", s.handleEventsInRange)
				r.Delete("/events", s.handleDeleteEventsInRange)
			}
			if s.configSvc != nil {
				r.Get("/shardConfiguration", s.handleGetConfiguration)
				r.Put("/shardConfiguration", s.handleSetConfiguration)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(s.tripCheck)
			r.Use(s.pauseCheckpoint)

			s.elementRoutes(r)
			s.queryRoutes(r)
		})
	})

	return r
}

func (s *Server) elementRoutes(r chi.Router) {
	r.Post("/users/{user}", s.handleAddUser)
	r.Delete("/users/{user}", s.handleRemoveUser)
	r.Post("/groups/{group}", s.handleAddGroup)
	r.Delete("/groups/{group}", s.handleRemoveGroup)

	r.Post("/userToGroupMappings/{user}/{group}", s.handleAddUserToGroup)
	r.Delete("/userToGroupMappings/{user}/{group}", s.handleRemoveUserToGroup)
	r.Post("/groupToGroupMappings/{fromGroup}/{toGroup}", s.handleAddGroupToGroup)
	r.Delete("/groupToGroupMappings/{fromGroup}/{toGroup}", s.handleRemoveGroupToGroup)

	r.Post("/userToComponentAccessMappings/{user}/{component}/{accessLevel}", s.handleAddUserComponent)
	r.Delete("/userToComponentAccessMappings/{user}/{component}/{accessLevel}", s.handleRemoveUserComponent)
	r.Post("/groupToComponentAccessMappings/{group}/{component}/{accessLevel}", s.handleAddGroupComponent)
	r.Delete("/groupToComponentAccessMappings/{group}/{component}/{accessLevel}", s.handleRemoveGroupComponent)

	r.Post("/entityTypes/{entityType}", s.handleAddEntityType)
	r.Delete("/entityTypes/{entityType}", s.handleRemoveEntityType)
	r.Post("/entityTypes/{entityType}/entities/{entity}", s.handleAddEntity)
	r.Delete("/entityTypes/{entityType}/entities/{entity}", s.handleRemoveEntity)

	r.Post("/userToEntityMappings/{user}/{entityType}/{entity}", s.handleAddUserEntity)
	r.Delete("/userToEntityMappings/{user}/{entityType}/{entity}", s.handleRemoveUserEntity)
	r.Post("/groupToEntityMappings/{group}/{entityType}/{entity}", s.handleAddGroupEntity)
	r.Delete("/groupToEntityMappings/{group}/{entityType}/{entity}", s.handleRemoveGroupEntity)
}

func (s *Server) queryRoutes(r chi.Router) {
	r.Get("/users/{user}", s.handleContainsUser)
	r.Get("/groups/{group}", s.handleContainsGroup)
	r.Get("/entityTypes/{entityType}", s.handleContainsEntityType)
	r.Get("/entityTypes/{entityType}/entities/{entity}", s.handleContainsEntity)

	r.Get("/users/{user}/groups", s.handleUserGroups)
	r.Get("/groups/{group}/users", s.handleGroupUsers)
	r.Get("/groups/{group}/groups", s.handleGroupGroups)
	r.Get("/groups/{group}/reverseGroups", s.handleGroupReverseGroups)

	r.Get("/users/{user}/hasAccessTo/{component}/{accessLevel}", s.handleUserHasComponent)
	r.Get("/groups/{group}/hasAccessTo/{component}/{accessLevel}", s.handleGroupHasComponent)
	r.Get("/users/{user}/hasAccessToEntity/{entityType}/{entity}", s.handleUserHasEntity)
	r.Get("/groups/{group}/hasAccessToEntity/{entityType}/{entity}", s.handleGroupHasEntity)

	r.Get("/users/{user}/accessibleComponents", s.handleUserComponents)
	r.Get("/groups/{group}/accessibleComponents", s.handleGroupComponents)
	r.Get("/users/{user}/accessibleEntities", s.handleUserEntities)
	r.Get("/groups/{group}/accessibleEntities", s.handleGroupEntities)

	if s.mappings != nil {
		r.Get("/users/{user}/componentMappings", s.handleUserComponentMappings)
		r.Get("/groups/{group}/componentMappings", s.handleGroupComponentMappings)
		r.Get("/users/{user}/entityMappings", s.handleUserEntityMappings)
		r.Get("/groups/{group}/entityMappings", s.handleGroupEntityMappings)
	}
}
