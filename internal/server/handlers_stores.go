package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SHESHU45/UrumiAssignment/internal/httputil"
	"github.com/SHESHU45/UrumiAssignment/internal/manager"
	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.stores.List(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	items := make([]types.Store, 0, len(stores))
	for _, st := range stores {
		items = append(items, toAPIStore(st))
	}
	httputil.RespondJSON(w, http.StatusOK, types.StoreListResponse{Stores: items})
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req types.CreateStoreRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondErrorf(w, http.StatusBadRequest, "Invalid request body: %v", err)
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Store name is required")
		return
	}

	created, err := s.stores.Create(r.Context(), manager.CreateRequest{
		Name:      name,
		Engine:    req.Engine,
		IPAddress: httputil.ClientIP(r),
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, types.StoreResponse{Store: toAPIStore(created)})
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	details, err := s.stores.GetDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.StoreDetailsResponse{Store: toAPIDetails(details)})
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	result, err := s.stores.Delete(r.Context(), chi.URLParam(r, "id"), httputil.ClientIP(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.DeleteStoreResponse{
		Message: result.Message,
		StoreID: result.StoreID,
	})
}

func (s *Server) handleListStoreEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := s.stores.ListStoreEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.EventListResponse{Events: toAPIEvents(items)})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := s.stores.ListEvents(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.EventListResponse{Events: toAPIEvents(items)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.stores.Metrics(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, types.MetricsResponse{Metrics: toAPIMetrics(snapshot)})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := s.stores.ListAudit(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	entries := make([]types.AuditEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, toAPIAudit(item))
	}
	httputil.RespondJSON(w, http.StatusOK, types.AuditLogResponse{AuditLog: entries})
}

// parseLimit reads ?limit=, defaulting to 100 and capping at 1000.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
