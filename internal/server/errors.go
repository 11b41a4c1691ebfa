package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/SHESHU45/UrumiAssignment/internal/httputil"
	"github.com/SHESHU45/UrumiAssignment/internal/manager"
)

// statusForKind maps orchestrator error kinds to HTTP status codes.
var statusForKind = map[manager.Kind]int{
	manager.KindValidation:       http.StatusBadRequest,
	manager.KindConflict:         http.StatusConflict,
	manager.KindQuotaExceeded:    http.StatusTooManyRequests,
	manager.KindConcurrencyLimit: http.StatusTooManyRequests,
	manager.KindNotFound:         http.StatusNotFound,
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, manager.ErrShuttingDown) {
		httputil.RespondError(w, http.StatusServiceUnavailable, "Service is shutting down, please retry shortly")
		return
	}
	if kind, ok := manager.KindOf(err); ok {
		if status, mapped := statusForKind[kind]; mapped {
			httputil.RespondError(w, status, err.Error())
			return
		}
	}
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		return
	}

	s.log.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
}
