package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Client talks to one shard node over its REST surface. A circuit breaker
// per endpoint converts repeated transport failures into fast
// ErrUnavailable answers instead of piling up blocked requests.
type Client struct {
	endpoint   string
	credential string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// Config holds configuration for creating a Client
type Config struct {
	Endpoint       string
	Credential     string
	RequestTimeout time.Duration
}

// New creates a client for one shard endpoint
func New(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		credential: cfg.Credential,
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.Endpoint,
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Endpoint returns the base URL this client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases the client
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// send performs one request through the circuit breaker and returns the
// status code and response body
func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.credential != "" {
			req.Header.Set("Authorization", "Bearer "+c.credential)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			// Count 503 as a breaker failure
			return nil, fmt.Errorf("%w: %s answered 503", ErrUnavailable, c.endpoint)
		}
		return &response{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return 0, nil, fmt.Errorf("%w: circuit open for %s", ErrUnavailable, c.endpoint)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp := result.(*response)
	return resp.status, resp.body, nil
}

type response struct {
	status int
	body   []byte
}

// statusErr maps a non-success status code to a sentinel error
func statusErr(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, string(body))
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, string(body))
	case status == http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", string(body))
	default:
		return fmt.Errorf("unexpected status %d: %s", status, string(body))
	}
}

func (c *Client) post(ctx context.Context, path string) error {
	status, body, err := c.send(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	return statusErr(status, body)
}

func (c *Client) del(ctx context.Context, path string) error {
	status, body, err := c.send(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return statusErr(status, body)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	status, body, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := statusErr(status, body); err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// exists translates 200/404 into a boolean
func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	status, body, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if err := statusErr(status, body); err != nil {
		return false, err
	}
	return true, nil
}

func esc(s string) string {
	return url.PathEscape(s)
}

// Element mutations

func (c *Client) AddUser(ctx context.Context, user string) error {
	return c.post(ctx, "/api/v1/users/"+esc(user))
}

func (c *Client) RemoveUser(ctx context.Context, user string) error {
	return c.del(ctx, "/api/v1/users/"+esc(user))
}

func (c *Client) AddGroup(ctx context.Context, group string) error {
	return c.post(ctx, "/api/v1/groups/"+esc(group))
}

func (c *Client) RemoveGroup(ctx context.Context, group string) error {
	return c.del(ctx, "/api/v1/groups/"+esc(group))
}

func (c *Client) AddUserToGroupMapping(ctx context.Context, user, group string) error {
	return c.post(ctx, "/api/v1/userToGroupMappings/"+esc(user)+"/"+esc(group))
}

func (c *Client) RemoveUserToGroupMapping(ctx context.Context, user, group string) error {
	return c.del(ctx, "/api/v1/userToGroupMappings/"+esc(user)+"/"+esc(group))
}

func (c *Client) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return c.post(ctx, "/api/v1/groupToGroupMappings/"+esc(fromGroup)+"/"+esc(toGroup))
}

func (c *Client) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return c.del(ctx, "/api/v1/groupToGroupMappings/"+esc(fromGroup)+"/"+esc(toGroup))
}

func (c *Client) AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return c.post(ctx, "/api/v1/userToComponentAccessMappings/"+esc(user)+"/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return c.del(ctx, "/api/v1/userToComponentAccessMappings/"+esc(user)+"/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return c.post(ctx, "/api/v1/groupToComponentAccessMappings/"+esc(group)+"/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return c.del(ctx, "/api/v1/groupToComponentAccessMappings/"+esc(group)+"/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) AddEntityType(ctx context.Context, entityType string) error {
	return c.post(ctx, "/api/v1/entityTypes/"+esc(entityType))
}

func (c *Client) RemoveEntityType(ctx context.Context, entityType string) error {
	return c.del(ctx, "/api/v1/entityTypes/"+esc(entityType))
}

func (c *Client) AddEntity(ctx context.Context, entityType, entity string) error {
	return c.post(ctx, "/api/v1/entityTypes/"+esc(entityType)+"/entities/"+esc(entity))
}

func (c *Client) RemoveEntity(ctx context.Context, entityType, entity string) error {
	return c.del(ctx, "/api/v1/entityTypes/"+esc(entityType)+"/entities/"+esc(entity))
}

func (c *Client) AddUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return c.post(ctx, "/api/v1/userToEntityMappings/"+esc(user)+"/"+esc(entityType)+"/"+esc(entity))
}

func (c *Client) RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return c.del(ctx, "/api/v1/userToEntityMappings/"+esc(user)+"/"+esc(entityType)+"/"+esc(entity))
}

func (c *Client) AddGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return c.post(ctx, "/api/v1/groupToEntityMappings/"+esc(group)+"/"+esc(entityType)+"/"+esc(entity))
}

func (c *Client) RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return c.del(ctx, "/api/v1/groupToEntityMappings/"+esc(group)+"/"+esc(entityType)+"/"+esc(entity))
}

// Queries

func (c *Client) ContainsUser(ctx context.Context, user string) (bool, error) {
	return c.exists(ctx, "/api/v1/users/"+esc(user))
}

func (c *Client) ContainsGroup(ctx context.Context, group string) (bool, error) {
	return c.exists(ctx, "/api/v1/groups/"+esc(group))
}

func (c *Client) ContainsEntityType(ctx context.Context, entityType string) (bool, error) {
	return c.exists(ctx, "/api/v1/entityTypes/"+esc(entityType))
}

func (c *Client) ContainsEntity(ctx context.Context, entityType, entity string) (bool, error) {
	return c.exists(ctx, "/api/v1/entityTypes/"+esc(entityType)+"/entities/"+esc(entity))
}

func indirect(includeIndirect bool) string {
	if includeIndirect {
		return "?includeIndirect=true"
	}
	return ""
}

func (c *Client) GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/v1/users/"+esc(user)+"/groups"+indirect(includeIndirect), &out)
	return out, err
}

func (c *Client) GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/v1/groups/"+esc(group)+"/users"+indirect(includeIndirect), &out)
	return out, err
}

func (c *Client) GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/v1/groups/"+esc(group)+"/groups"+indirect(includeIndirect), &out)
	return out, err
}

func (c *Client) GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/v1/groups/"+esc(group)+"/reverseGroups"+indirect(includeIndirect), &out)
	return out, err
}

func (c *Client) getBool(ctx context.Context, path string) (bool, error) {
	var out bool
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *Client) HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error) {
	return c.getBool(ctx, "/api/v1/users/"+esc(user)+"/hasAccessTo/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error) {
	return c.getBool(ctx, "/api/v1/groups/"+esc(group)+"/hasAccessTo/"+esc(component)+"/"+esc(accessLevel))
}

func (c *Client) HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error) {
	return c.getBool(ctx, "/api/v1/users/"+esc(user)+"/hasAccessToEntity/"+esc(entityType)+"/"+esc(entity))
}

func (c *Client) GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error) {
	return c.getBool(ctx, "/api/v1/groups/"+esc(group)+"/hasAccessToEntity/"+esc(entityType)+"/"+esc(entity))
}

func (c *Client) ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error) {
	var out []access.ComponentAccess
	err := c.getJSON(ctx, "/api/v1/users/"+esc(user)+"/accessibleComponents", &out)
	return out, err
}

func (c *Client) ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error) {
	var out []access.ComponentAccess
	err := c.getJSON(ctx, "/api/v1/groups/"+esc(group)+"/accessibleComponents", &out)
	return out, err
}

func entityTypeQuery(entityType string) string {
	if entityType == "" {
		return ""
	}
	return "?entityType=" + url.QueryEscape(entityType)
}

func (c *Client) EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error) {
	var out []access.EntityRef
	err := c.getJSON(ctx, "/api/v1/users/"+esc(user)+"/accessibleEntities"+entityTypeQuery(entityType), &out)
	return out, err
}

func (c *Client) EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error) {
	var out []access.EntityRef
	err := c.getJSON(ctx, "/api/v1/groups/"+esc(group)+"/accessibleEntities"+entityTypeQuery(entityType), &out)
	return out, err
}

// Event log surface

func (c *Client) ApplyEvents(ctx context.Context, events []*types.Event) error {
	body, err := types.MarshalEvents(events)
	if err != nil {
		return err
	}
	status, data, err := c.send(ctx, http.MethodPost, "/api/v1/eventBufferItems", body)
	if err != nil {
		return err
	}
	return statusErr(status, data)
}

// EventsSince tails the shard's temporal event cache. A 404 is reported as
// cache.ErrEventNotCached so reader nodes fall back to the event store.
func (c *Client) EventsSince(priorID uuid.UUID) ([]*types.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	status, body, err := c.send(ctx, http.MethodGet, "/api/v1/eventBufferItems?priorEventId="+priorID.String(), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, cache.ErrEventNotCached
	}
	if err := statusErr(status, body); err != nil {
		return nil, err
	}
	return types.UnmarshalEvents(body)
}

// GetEventsInHashRange reads one dimension's events in [lo,hi] at or after
// since, with their log positions, for split backfills
func (c *Client) GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error) {
	path := fmt.Sprintf("/api/v1/events?kind=%s&lo=%d&hi=%d&since=%d&limit=%d",
		url.QueryEscape(string(kind)), lo, hi, since.UnixNano(), limit)
	status, body, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := statusErr(status, body); err != nil {
		return nil, err
	}
	return types.UnmarshalPersistedEvents(body)
}

// DeleteEventsInHashRange deletes one dimension's events in [lo,hi] older
// than the cutoff, for split cleanup
func (c *Client) DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error) {
	path := fmt.Sprintf("/api/v1/events?kind=%s&lo=%d&hi=%d&before=%d",
		url.QueryEscape(string(kind)), lo, hi, before.UnixNano())
	status, body, err := c.send(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return 0, err
	}
	if err := statusErr(status, body); err != nil {
		return 0, err
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Shard configuration surface

func (c *Client) LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error) {
	var set types.ShardConfigurationSet
	if err := c.getJSON(ctx, "/api/v1/shardConfiguration", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *Client) SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error {
	body, err := json.Marshal(set)
	if err != nil {
		return err
	}
	status, data, err := c.send(ctx, http.MethodPut, "/api/v1/shardConfiguration", body)
	if err != nil {
		return err
	}
	return statusErr(status, data)
}

// Admin surface

func (c *Client) Status(ctx context.Context) (*types.NodeStatus, error) {
	var out types.NodeStatus
	if err := c.getJSON(ctx, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/api/v1/pause")
}

func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/api/v1/resume")
}

func (c *Client) RoutingOn(ctx context.Context) error {
	return c.post(ctx, "/api/v1/routingOn")
}

func (c *Client) RoutingOff(ctx context.Context) error {
	return c.post(ctx, "/api/v1/routingOff")
}
