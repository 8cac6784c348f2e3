package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/reader"
	"github.com/cuemby/warden/pkg/trip"
	"github.com/cuemby/warden/pkg/types"
)

// writeError maps domain errors onto status codes:
// 400 malformed input, 404 missing element, 409 conflict or cycle,
// 503 tripped or upstream unavailable
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound), errors.Is(err, client.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, access.ErrAlreadyExists), errors.Is(err, access.ErrCycle), errors.Is(err, client.ErrConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrMalformedEvent):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reader.ErrReadOnly):
		writeJSONError(w, http.StatusMethodNotAllowed, err.Error())
	case errors.Is(err, trip.ErrTripped), errors.Is(err, client.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// mutation runs op and answers 204 on success
func (s *Server) mutation(w http.ResponseWriter, op func() error) {
	if err := op(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// contains answers 200 with the element name, or 404
func (s *Server) contains(w http.ResponseWriter, name string, op func() (bool, error)) {
	ok, err := op()
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, name+" not found")
		return
	}
	writeJSON(w, name)
}

// list answers a JSON array, treating nil as empty
func (s *Server) list(w http.ResponseWriter, op func() (interface{}, error)) {
	out, err := op()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func includeIndirect(r *http.Request) bool {
	return r.URL.Query().Get("includeIndirect") == "true"
}

// Element mutations

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.AddUser(r.Context(), chi.URLParam(r, "user")) })
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.RemoveUser(r.Context(), chi.URLParam(r, "user")) })
}

func (s *Server) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.AddGroup(r.Context(), chi.URLParam(r, "group")) })
}

func (s *Server) handleRemoveGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.RemoveGroup(r.Context(), chi.URLParam(r, "group")) })
}

func (s *Server) handleAddUserToGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddUserToGroupMapping(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "group"))
	})
}

func (s *Server) handleRemoveUserToGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveUserToGroupMapping(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "group"))
	})
}

func (s *Server) handleAddGroupToGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddGroupToGroupMapping(r.Context(), chi.URLParam(r, "fromGroup"), chi.URLParam(r, "toGroup"))
	})
}

func (s *Server) handleRemoveGroupToGroup(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveGroupToGroupMapping(r.Context(), chi.URLParam(r, "fromGroup"), chi.URLParam(r, "toGroup"))
	})
}

func (s *Server) handleAddUserComponent(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddUserToComponentAccess(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleRemoveUserComponent(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveUserToComponentAccess(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleAddGroupComponent(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddGroupToComponentAccess(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleRemoveGroupComponent(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveGroupToComponentAccess(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleAddEntityType(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.AddEntityType(r.Context(), chi.URLParam(r, "entityType")) })
}

func (s *Server) handleRemoveEntityType(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error { return s.svc.RemoveEntityType(r.Context(), chi.URLParam(r, "entityType")) })
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddEntity(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveEntity(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleAddUserEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddUserToEntity(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleRemoveUserEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveUserToEntity(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleAddGroupEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.AddGroupToEntity(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleRemoveGroupEntity(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, func() error {
		return s.svc.RemoveGroupToEntity(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

// Queries

func (s *Server) handleContainsUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	s.contains(w, user, func() (bool, error) { return s.svc.ContainsUser(r.Context(), user) })
}

func (s *Server) handleContainsGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	s.contains(w, group, func() (bool, error) { return s.svc.ContainsGroup(r.Context(), group) })
}

func (s *Server) handleContainsEntityType(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	s.contains(w, entityType, func() (bool, error) { return s.svc.ContainsEntityType(r.Context(), entityType) })
}

func (s *Server) handleContainsEntity(w http.ResponseWriter, r *http.Request) {
	entityType, entity := chi.URLParam(r, "entityType"), chi.URLParam(r, "entity")
	s.contains(w, entity, func() (bool, error) { return s.svc.ContainsEntity(r.Context(), entityType, entity) })
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.GetUserToGroupMappings(r.Context(), chi.URLParam(r, "user"), includeIndirect(r))
		return emptyIfNil(out), err
	})
}

func (s *Server) handleGroupUsers(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.GetGroupToUserMappings(r.Context(), chi.URLParam(r, "group"), includeIndirect(r))
		return emptyIfNil(out), err
	})
}

func (s *Server) handleGroupGroups(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.GetGroupToGroupMappings(r.Context(), chi.URLParam(r, "group"), includeIndirect(r))
		return emptyIfNil(out), err
	})
}

func (s *Server) handleGroupReverseGroups(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.GetGroupToGroupReverseMappings(r.Context(), chi.URLParam(r, "group"), includeIndirect(r))
		return emptyIfNil(out), err
	})
}

func (s *Server) handleUserHasComponent(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		return s.svc.HasAccessToComponent(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleGroupHasComponent(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		return s.svc.GroupHasAccessToComponent(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "component"), chi.URLParam(r, "accessLevel"))
	})
}

func (s *Server) handleUserHasEntity(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		return s.svc.HasAccessToEntity(r.Context(),
			chi.URLParam(r, "user"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleGroupHasEntity(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		return s.svc.GroupHasAccessToEntity(r.Context(),
			chi.URLParam(r, "group"), chi.URLParam(r, "entityType"), chi.URLParam(r, "entity"))
	})
}

func (s *Server) handleUserComponents(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.ComponentsAccessibleByUser(r.Context(), chi.URLParam(r, "user"))
		return emptyIfNilCA(out), err
	})
}

func (s *Server) handleGroupComponents(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.ComponentsAccessibleByGroup(r.Context(), chi.URLParam(r, "group"))
		return emptyIfNilCA(out), err
	})
}

func (s *Server) handleUserEntities(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.EntitiesAccessibleByUser(r.Context(),
			chi.URLParam(r, "user"), r.URL.Query().Get("entityType"))
		return emptyIfNilER(out), err
	})
}

func (s *Server) handleGroupEntities(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.svc.EntitiesAccessibleByGroup(r.Context(),
			chi.URLParam(r, "group"), r.URL.Query().Get("entityType"))
		return emptyIfNilER(out), err
	})
}

func (s *Server) handleUserComponentMappings(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.mappings.GetUserToComponentAccessMappings(r.Context(), chi.URLParam(r, "user"))
		return emptyIfNilCA(out), err
	})
}

func (s *Server) handleGroupComponentMappings(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.mappings.GetGroupToComponentAccessMappings(r.Context(), chi.URLParam(r, "group"))
		return emptyIfNilCA(out), err
	})
}

func (s *Server) handleUserEntityMappings(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.mappings.GetUserToEntityMappings(r.Context(),
			chi.URLParam(r, "user"), r.URL.Query().Get("entityType"))
		return emptyIfNilER(out), err
	})
}

func (s *Server) handleGroupEntityMappings(w http.ResponseWriter, r *http.Request) {
	s.list(w, func() (interface{}, error) {
		out, err := s.mappings.GetGroupToEntityMappings(r.Context(),
			chi.URLParam(r, "group"), r.URL.Query().Get("entityType"))
		return emptyIfNilER(out), err
	})
}

// Event log surface

func (s *Server) handleApplyEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	events, err := types.UnmarshalEvents(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.events.ApplyEvents(r.Context(), events); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleEventsSince(w http.ResponseWriter, r *http.Request) {
	priorID, err := uuid.Parse(r.URL.Query().Get("priorEventId"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid priorEventId")
		return
	}
	events, err := s.events.EventsSince(priorID)
	if err != nil {
		if errors.Is(err, cache.ErrEventNotCached) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	data, err := types.MarshalEvents(events)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Hash-range surface

func rangeParams(r *http.Request) (types.DataElementKind, int32, int32, error) {
	q := r.URL.Query()
	kind := types.DataElementKind(q.Get("kind"))
	valid := false
	for _, k := range types.DataElementKinds {
		if k == kind {
			valid = true
		}
	}
	if !valid {
		return "", 0, 0, errors.New("invalid kind")
	}
	lo, err := strconv.ParseInt(q.Get("lo"), 10, 32)
	if err != nil {
		return "", 0, 0, errors.New("invalid lo")
	}
	hi, err := strconv.ParseInt(q.Get("hi"), 10, 32)
	if err != nil {
		return "", 0, 0, errors.New("invalid hi")
	}
	return kind, int32(lo), int32(hi), nil
}

func (s *Server) handleEventsInRange(w http.ResponseWriter, r *http.Request) {
	kind, lo, hi, err := rangeParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	sinceNanos, _ := strconv.ParseInt(q.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := s.ranges.GetEventsInHashRange(r.Context(), kind, lo, hi, time.Unix(0, sinceNanos).UTC(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := types.MarshalPersistedEvents(events)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteEventsInRange(w http.ResponseWriter, r *http.Request) {
	kind, lo, hi, err := rangeParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	beforeNanos, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid before")
		return
	}
	deleted, err := s.ranges.DeleteEventsInHashRange(r.Context(), kind, lo, hi, time.Unix(0, beforeNanos).UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{"deleted": deleted})
}

// Shard configuration surface

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	set, err := s.configSvc.LoadConfiguration(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, set)
}

func (s *Server) handleSetConfiguration(w http.ResponseWriter, r *http.Request) {
	var set types.ShardConfigurationSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeJSONError(w, http.StatusBadRequest, "parsing configuration: "+err.Error())
		return
	}
	if err := set.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mutation(w, func() error { return s.configSvc.SaveConfiguration(r.Context(), &set) })
}

// Admin surface

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if s.routing != nil {
		status.RoutingOn = s.routing.IsRoutingOn()
	}
	writeJSON(w, status)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.pauser == nil {
		writeJSONError(w, http.StatusNotFound, "node has no pause gate")
		return
	}
	s.pauser.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.pauser == nil {
		writeJSONError(w, http.StatusNotFound, "node has no pause gate")
		return
	}
	s.pauser.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoutingOn(w http.ResponseWriter, r *http.Request) {
	if s.routing == nil {
		writeJSONError(w, http.StatusNotFound, "node has no routing switch")
		return
	}
	s.routing.RoutingOn()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoutingOff(w http.ResponseWriter, r *http.Request) {
	if s.routing == nil {
		writeJSONError(w, http.StatusNotFound, "node has no routing switch")
		return
	}
	s.routing.RoutingOff()
	w.WriteHeader(http.StatusNoContent)
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyIfNilCA(in []access.ComponentAccess) []access.ComponentAccess {
	if in == nil {
		return []access.ComponentAccess{}
	}
	return in
}

func emptyIfNilER(in []access.EntityRef) []access.EntityRef {
	if in == nil {
		return []access.EntityRef{}
	}
	return in
}
