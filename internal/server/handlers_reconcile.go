package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/SHESHU45/UrumiAssignment/internal/httputil"
)

func (s *Server) handleReconcileStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, toAPIReconcileStatus(s.reconciler.Status()))
}

// handleTriggerReconcile runs one pass and answers with the resulting status.
func (s *Server) handleTriggerReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
	defer cancel()

	if err := s.reconciler.Trigger(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			httputil.RespondError(w, http.StatusServiceUnavailable, "Reconciliation loop is not accepting requests")
			return
		}
		s.log.Error().Err(err).Msg("manual reconciliation failed")
		httputil.RespondErrorf(w, http.StatusBadGateway, "Reconciliation failed: %v", err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toAPIReconcileStatus(s.reconciler.Status()))
}
