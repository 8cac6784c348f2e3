package coordinator

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/shard"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

// errShortCircuit cancels sibling fan-out calls once a boolean OR-reduction
// has its answer
var errShortCircuit = errors.New("short circuit")

// Config holds configuration for creating a Coordinator
type Config struct {
	// FanoutParallelism bounds concurrent shard calls per request
	FanoutParallelism int
}

// Coordinator translates client-level operations into one or more shard
// calls. Elements are dispatched by the hash of their primary element;
// entity-type and entity mutations are broadcast to every shard.
//
// Partial-failure policy: a not-found from a single shard contributes an
// empty result to an aggregate, but any transport failure aborts the whole
// request with client.ErrUnavailable. The coordinator does not retry;
// callers do.
type Coordinator struct {
	shards      *shard.Manager
	configStore storage.ConfigStore
	cfg         Config
}

// New creates a coordinator over a shard manager. configStore may be nil
// when the configuration surface is not served.
func New(shards *shard.Manager, configStore storage.ConfigStore, cfg Config) *Coordinator {
	if cfg.FanoutParallelism == 0 {
		cfg.FanoutParallelism = 8
	}
	return &Coordinator{shards: shards, configStore: configStore, cfg: cfg}
}

// Status reports the coordinator's self-description
func (c *Coordinator) Status(ctx context.Context) (*types.NodeStatus, error) {
	return &types.NodeStatus{Role: "coordinator"}, nil
}

// LoadConfiguration returns the persisted shard routing configuration
func (c *Coordinator) LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error) {
	return c.configStore.LoadConfiguration(ctx)
}

// SaveConfiguration persists a new routing configuration and swaps the
// routing table immediately instead of waiting for the refresh poll
func (c *Coordinator) SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error {
	if err := c.shards.Refresh(set); err != nil {
		return err
	}
	return c.configStore.SaveConfiguration(ctx, set)
}

func (c *Coordinator) userShard(user string) (client.API, error) {
	return c.shards.RouteOne(types.ElementUser, user)
}

func (c *Coordinator) groupShard(group string) (client.API, error) {
	return c.shards.RouteOne(types.ElementGroup, group)
}

// allShards returns one client per distinct endpoint across every
// partitioning dimension, for broadcast mutations
func (c *Coordinator) allShards() []client.API {
	seen := make(map[string]struct{})
	var apis []client.API
	for _, kind := range types.DataElementKinds {
		for _, api := range c.shards.RouteAll(kind) {
			if _, dup := seen[api.Endpoint()]; dup {
				continue
			}
			seen[api.Endpoint()] = struct{}{}
			apis = append(apis, api)
		}
	}
	return apis
}

// Element mutations

func (c *Coordinator) AddUser(ctx context.Context, user string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.AddUser(ctx, user)
}

func (c *Coordinator) RemoveUser(ctx context.Context, user string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.RemoveUser(ctx, user)
}

// AddGroup creates the group on its owning group shard and on every
// group-to-group shard, so mapping shards can resolve it without a
// cross-shard lookup. The duplicate adds are no-ops on shards that already
// know the group.
func (c *Coordinator) AddGroup(ctx context.Context, group string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	if err := api.AddGroup(ctx, group); err != nil {
		return err
	}
	return c.each(ctx, c.shards.RouteAll(types.ElementGroupToGroup), func(ctx context.Context, api client.API) error {
		return api.AddGroup(ctx, group)
	})
}

func (c *Coordinator) RemoveGroup(ctx context.Context, group string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	if err := api.RemoveGroup(ctx, group); err != nil {
		return err
	}
	return c.each(ctx, c.shards.RouteAll(types.ElementGroupToGroup), func(ctx context.Context, api client.API) error {
		err := api.RemoveGroup(ctx, group)
		if errors.Is(err, client.ErrNotFound) {
			return nil
		}
		return err
	})
}

// AddUserToGroupMapping dispatches on the user's shard, which prepends the
// user and group as needed. The group is also created on its own dimension
// so group-side queries resolve it.
func (c *Coordinator) AddUserToGroupMapping(ctx context.Context, user, group string) error {
	userAPI, err := c.userShard(user)
	if err != nil {
		return err
	}
	if err := c.AddGroup(ctx, group); err != nil {
		return err
	}
	return userAPI.AddUserToGroupMapping(ctx, user, group)
}

func (c *Coordinator) RemoveUserToGroupMapping(ctx context.Context, user, group string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.RemoveUserToGroupMapping(ctx, user, group)
}

// AddGroupToGroupMapping dispatches on the from-group's hash in the
// group-to-group dimension; both endpoints are created on their own group
// shards first
func (c *Coordinator) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	api, err := c.shards.RouteOne(types.ElementGroupToGroup, fromGroup)
	if err != nil {
		return err
	}
	if err := c.AddGroup(ctx, fromGroup); err != nil {
		return err
	}
	if err := c.AddGroup(ctx, toGroup); err != nil {
		return err
	}
	return api.AddGroupToGroupMapping(ctx, fromGroup, toGroup)
}

func (c *Coordinator) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	api, err := c.shards.RouteOne(types.ElementGroupToGroup, fromGroup)
	if err != nil {
		return err
	}
	return api.RemoveGroupToGroupMapping(ctx, fromGroup, toGroup)
}

func (c *Coordinator) AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.AddUserToComponentAccess(ctx, user, component, accessLevel)
}

func (c *Coordinator) RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.RemoveUserToComponentAccess(ctx, user, component, accessLevel)
}

func (c *Coordinator) AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	return api.AddGroupToComponentAccess(ctx, group, component, accessLevel)
}

func (c *Coordinator) RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	return api.RemoveGroupToComponentAccess(ctx, group, component, accessLevel)
}

// AddEntityType broadcasts to every shard; entity-type and entity elements
// are not partitioned
func (c *Coordinator) AddEntityType(ctx context.Context, entityType string) error {
	return c.each(ctx, c.allShards(), func(ctx context.Context, api client.API) error {
		return api.AddEntityType(ctx, entityType)
	})
}

func (c *Coordinator) RemoveEntityType(ctx context.Context, entityType string) error {
	return c.each(ctx, c.allShards(), func(ctx context.Context, api client.API) error {
		err := api.RemoveEntityType(ctx, entityType)
		if errors.Is(err, client.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (c *Coordinator) AddEntity(ctx context.Context, entityType, entity string) error {
	return c.each(ctx, c.allShards(), func(ctx context.Context, api client.API) error {
		return api.AddEntity(ctx, entityType, entity)
	})
}

func (c *Coordinator) RemoveEntity(ctx context.Context, entityType, entity string) error {
	return c.each(ctx, c.allShards(), func(ctx context.Context, api client.API) error {
		err := api.RemoveEntity(ctx, entityType, entity)
		if errors.Is(err, client.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (c *Coordinator) AddUserToEntity(ctx context.Context, user, entityType, entity string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.AddUserToEntity(ctx, user, entityType, entity)
}

func (c *Coordinator) RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error {
	api, err := c.userShard(user)
	if err != nil {
		return err
	}
	return api.RemoveUserToEntity(ctx, user, entityType, entity)
}

func (c *Coordinator) AddGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	return api.AddGroupToEntity(ctx, group, entityType, entity)
}

func (c *Coordinator) RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	api, err := c.groupShard(group)
	if err != nil {
		return err
	}
	return api.RemoveGroupToEntity(ctx, group, entityType, entity)
}

// Queries

func (c *Coordinator) ContainsUser(ctx context.Context, user string) (bool, error) {
	api, err := c.userShard(user)
	if err != nil {
		return false, err
	}
	return api.ContainsUser(ctx, user)
}

func (c *Coordinator) ContainsGroup(ctx context.Context, group string) (bool, error) {
	api, err := c.groupShard(group)
	if err != nil {
		return false, err
	}
	return api.ContainsGroup(ctx, group)
}

// ContainsEntityType asks a single shard; broadcast elements exist on every
// shard or none
func (c *Coordinator) ContainsEntityType(ctx context.Context, entityType string) (bool, error) {
	apis := c.shards.RouteAll(types.ElementUser)
	if len(apis) == 0 {
		return false, shard.ErrNoRoute
	}
	return apis[0].ContainsEntityType(ctx, entityType)
}

func (c *Coordinator) ContainsEntity(ctx context.Context, entityType, entity string) (bool, error) {
	apis := c.shards.RouteAll(types.ElementUser)
	if len(apis) == 0 {
		return false, shard.ErrNoRoute
	}
	return apis[0].ContainsEntity(ctx, entityType, entity)
}

func (c *Coordinator) GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error) {
	api, err := c.userShard(user)
	if err != nil {
		return nil, err
	}
	direct, err := api.GetUserToGroupMappings(ctx, user, false)
	if err != nil {
		return nil, err
	}
	if !includeIndirect {
		return direct, nil
	}
	all, err := c.expandGroups(ctx, direct)
	if err != nil {
		return nil, err
	}
	return sortedKeys(all), nil
}

// GetGroupToUserMappings unions user-to-group edges across every user
// shard; the edges are partitioned by user, not by group
func (c *Coordinator) GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	groups := map[string]struct{}{group: {}}
	if includeIndirect {
		// Users of any group that reaches this one are indirect members
		reverse, err := c.GetGroupToGroupReverseMappings(ctx, group, true)
		if err != nil && !errors.Is(err, client.ErrNotFound) {
			return nil, err
		}
		for _, g := range reverse {
			groups[g] = struct{}{}
		}
	}

	users := make(map[string]struct{})
	err := c.aggregate(ctx, c.shards.RouteAll(types.ElementUser), func(ctx context.Context, api client.API) error {
		for g := range groups {
			members, err := api.GetGroupToUserMappings(ctx, g, false)
			if errors.Is(err, client.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, u := range members {
				users[u] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(users), nil
}

func (c *Coordinator) GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	api, err := c.shards.RouteOne(types.ElementGroupToGroup, group)
	if err != nil {
		return nil, err
	}
	direct, err := api.GetGroupToGroupMappings(ctx, group, false)
	if err != nil {
		return nil, err
	}
	if !includeIndirect {
		return direct, nil
	}
	all, err := c.expandGroups(ctx, direct)
	if err != nil {
		return nil, err
	}
	return sortedKeys(all), nil
}

// GetGroupToGroupReverseMappings unions reverse edges across every
// group-to-group shard; edges are partitioned by their from-group
func (c *Coordinator) GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	found := make(map[string]struct{})
	frontier := []string{group}
	seen := map[string]struct{}{group: {}}

	for len(frontier) > 0 {
		layer := make(map[string]struct{})
		err := c.aggregate(ctx, c.shards.RouteAll(types.ElementGroupToGroup), func(ctx context.Context, api client.API) error {
			for _, g := range frontier {
				parents, err := api.GetGroupToGroupReverseMappings(ctx, g, false)
				if errors.Is(err, client.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				for _, p := range parents {
					layer[p] = struct{}{}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for p := range layer {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			found[p] = struct{}{}
			frontier = append(frontier, p)
		}
		if !includeIndirect {
			break
		}
	}
	return sortedKeys(found), nil
}

func (c *Coordinator) HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error) {
	api, err := c.userShard(user)
	if err != nil {
		return false, err
	}
	direct, err := api.HasAccessToComponent(ctx, user, component, accessLevel)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	if direct {
		return true, nil
	}
	groups, err := c.reachableGroups(ctx, api, user)
	if err != nil {
		return false, err
	}
	return c.anyGroup(ctx, groups, func(ctx context.Context, api client.API, group string) (bool, error) {
		return api.GroupHasAccessToComponent(ctx, group, component, accessLevel)
	})
}

func (c *Coordinator) GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error) {
	api, err := c.groupShard(group)
	if err != nil {
		return false, err
	}
	direct, err := api.GroupHasAccessToComponent(ctx, group, component, accessLevel)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	if direct {
		return true, nil
	}
	groups, err := c.GetGroupToGroupMappings(ctx, group, true)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	return c.anyGroup(ctx, groups, func(ctx context.Context, api client.API, g string) (bool, error) {
		return api.GroupHasAccessToComponent(ctx, g, component, accessLevel)
	})
}

// HasAccessToEntity answers from the user's shard first, then OR-reduces
// over the shards of the user's reachable groups, cancelling siblings on
// the first true
func (c *Coordinator) HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error) {
	api, err := c.userShard(user)
	if err != nil {
		return false, err
	}
	direct, err := api.HasAccessToEntity(ctx, user, entityType, entity)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	if direct {
		return true, nil
	}
	groups, err := c.reachableGroups(ctx, api, user)
	if err != nil {
		return false, err
	}
	return c.anyGroup(ctx, groups, func(ctx context.Context, api client.API, group string) (bool, error) {
		return api.GroupHasAccessToEntity(ctx, group, entityType, entity)
	})
}

func (c *Coordinator) GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error) {
	api, err := c.groupShard(group)
	if err != nil {
		return false, err
	}
	direct, err := api.GroupHasAccessToEntity(ctx, group, entityType, entity)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	if direct {
		return true, nil
	}
	groups, err := c.GetGroupToGroupMappings(ctx, group, true)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return false, err
	}
	return c.anyGroup(ctx, groups, func(ctx context.Context, api client.API, g string) (bool, error) {
		return api.GroupHasAccessToEntity(ctx, g, entityType, entity)
	})
}

func (c *Coordinator) ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error) {
	api, err := c.userShard(user)
	if err != nil {
		return nil, err
	}
	direct, err := api.ComponentsAccessibleByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	groups, err := c.reachableGroups(ctx, api, user)
	if err != nil {
		return nil, err
	}

	union := make(map[access.ComponentAccess]struct{})
	for _, ca := range direct {
		union[ca] = struct{}{}
	}
	err = c.eachGroup(ctx, groups, func(ctx context.Context, api client.API, group string) ([]access.ComponentAccess, error) {
		return api.ComponentsAccessibleByGroup(ctx, group)
	}, func(items []access.ComponentAccess) {
		for _, ca := range items {
			union[ca] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return sortedComponents(union), nil
}

func (c *Coordinator) ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error) {
	api, err := c.groupShard(group)
	if err != nil {
		return nil, err
	}
	direct, err := api.ComponentsAccessibleByGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	groups, err := c.GetGroupToGroupMappings(ctx, group, true)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return nil, err
	}

	union := make(map[access.ComponentAccess]struct{})
	for _, ca := range direct {
		union[ca] = struct{}{}
	}
	err = c.eachGroup(ctx, groups, func(ctx context.Context, api client.API, g string) ([]access.ComponentAccess, error) {
		return api.ComponentsAccessibleByGroup(ctx, g)
	}, func(items []access.ComponentAccess) {
		for _, ca := range items {
			union[ca] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return sortedComponents(union), nil
}

func (c *Coordinator) EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error) {
	api, err := c.userShard(user)
	if err != nil {
		return nil, err
	}
	direct, err := api.EntitiesAccessibleByUser(ctx, user, entityType)
	if err != nil {
		return nil, err
	}
	groups, err := c.reachableGroups(ctx, api, user)
	if err != nil {
		return nil, err
	}

	union := make(map[access.EntityRef]struct{})
	for _, ref := range direct {
		union[ref] = struct{}{}
	}
	err = c.eachGroupEntities(ctx, groups, entityType, func(items []access.EntityRef) {
		for _, ref := range items {
			union[ref] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return sortedEntities(union), nil
}

func (c *Coordinator) EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error) {
	api, err := c.groupShard(group)
	if err != nil {
		return nil, err
	}
	direct, err := api.EntitiesAccessibleByGroup(ctx, group, entityType)
	if err != nil {
		return nil, err
	}
	groups, err := c.GetGroupToGroupMappings(ctx, group, true)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return nil, err
	}

	union := make(map[access.EntityRef]struct{})
	for _, ref := range direct {
		union[ref] = struct{}{}
	}
	err = c.eachGroupEntities(ctx, groups, entityType, func(items []access.EntityRef) {
		for _, ref := range items {
			union[ref] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return sortedEntities(union), nil
}

// reachableGroups returns the user's direct groups from its shard plus the
// transitive closure over the group-to-group shards
func (c *Coordinator) reachableGroups(ctx context.Context, userAPI client.API, user string) ([]string, error) {
	direct, err := userAPI.GetUserToGroupMappings(ctx, user, false)
	if errors.Is(err, client.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	all, err := c.expandGroups(ctx, direct)
	if err != nil {
		return nil, err
	}
	return sortedKeys(all), nil
}

// expandGroups walks group-to-group edges breadth first across shards until
// the frontier is exhausted
func (c *Coordinator) expandGroups(ctx context.Context, seed []string) (map[string]struct{}, error) {
	all := make(map[string]struct{})
	frontier := append([]string(nil), seed...)
	for _, g := range seed {
		all[g] = struct{}{}
	}

	for len(frontier) > 0 {
		group := frontier[0]
		frontier = frontier[1:]

		api, err := c.shards.RouteOne(types.ElementGroupToGroup, group)
		if err != nil {
			return nil, err
		}
		next, err := api.GetGroupToGroupMappings(ctx, group, false)
		if errors.Is(err, client.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, g := range next {
			if _, dup := all[g]; dup {
				continue
			}
			all[g] = struct{}{}
			frontier = append(frontier, g)
		}
	}
	return all, nil
}

// anyGroup OR-reduces a boolean predicate over each group's owning shard
// in parallel, cancelling outstanding calls on the first true
func (c *Coordinator) anyGroup(ctx context.Context, groups []string, predicate func(context.Context, client.API, string) (bool, error)) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}
	start := time.Now()
	defer func() {
		metrics.FanoutDuration.WithLabelValues("or_reduce").Observe(time.Since(start).Seconds())
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanoutParallelism)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			api, err := c.groupShard(group)
			if err != nil {
				return err
			}
			ok, err := predicate(ctx, api, group)
			if errors.Is(err, client.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if ok {
				return errShortCircuit
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, errShortCircuit) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// eachGroup collects per-group results from their owning shards in
// parallel. merge runs on the coordinating goroutine.
func (c *Coordinator) eachGroup(ctx context.Context, groups []string, fetch func(context.Context, client.API, string) ([]access.ComponentAccess, error), merge func([]access.ComponentAccess)) error {
	if len(groups) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.FanoutDuration.WithLabelValues("component_union").Observe(time.Since(start).Seconds())
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanoutParallelism)
	results := make([][]access.ComponentAccess, len(groups))

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			api, err := c.groupShard(group)
			if err != nil {
				return err
			}
			items, err := fetch(ctx, api, group)
			if errors.Is(err, client.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, items := range results {
		merge(items)
	}
	return nil
}

func (c *Coordinator) eachGroupEntities(ctx context.Context, groups []string, entityType string, merge func([]access.EntityRef)) error {
	if len(groups) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.FanoutDuration.WithLabelValues("entity_union").Observe(time.Since(start).Seconds())
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanoutParallelism)
	results := make([][]access.EntityRef, len(groups))

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			api, err := c.groupShard(group)
			if err != nil {
				return err
			}
			items, err := api.EntitiesAccessibleByGroup(ctx, group, entityType)
			if errors.Is(err, client.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, items := range results {
		merge(items)
	}
	return nil
}

// each runs op against every client in parallel and fails on the first error
func (c *Coordinator) each(ctx context.Context, apis []client.API, op func(context.Context, client.API) error) error {
	if len(apis) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanoutParallelism)
	for _, api := range apis {
		api := api
		g.Go(func() error {
			return op(ctx, api)
		})
	}
	return g.Wait()
}

// aggregate runs op against every client sequentially; op mutates shared
// aggregation state, so it must not run concurrently
func (c *Coordinator) aggregate(ctx context.Context, apis []client.API, op func(context.Context, client.API) error) error {
	for _, api := range apis {
		if err := op(ctx, api); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedComponents(set map[access.ComponentAccess]struct{}) []access.ComponentAccess {
	out := make([]access.ComponentAccess, 0, len(set))
	for ca := range set {
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Access < out[j].Access
	})
	return out
}

func sortedEntities(set map[access.EntityRef]struct{}) []access.EntityRef {
	out := make([]access.EntityRef, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}
