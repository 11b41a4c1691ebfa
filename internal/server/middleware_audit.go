package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SHESHU45/UrumiAssignment/internal/audit"
	"github.com/SHESHU45/UrumiAssignment/internal/httputil"
)

type teeBody struct {
	io.Reader
	io.Closer
}

// auditMutations records one audit entry per POST, PUT, PATCH or DELETE
// after the handler has answered. The captured body is redacted.
func (s *Server) auditMutations(next http.Handler) http.Handler {
	if s.auditor == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		var captured bytes.Buffer
		if r.Body != nil {
			r.Body = teeBody{Reader: io.TeeReader(r.Body, &captured), Closer: r.Body}
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		details := map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"statusCode": status,
		}
		if body := audit.RedactBody(captured.Bytes()); body != nil {
			details["body"] = body
		}

		entry := audit.Entry{
			StoreID:   chi.URLParam(r, "id"),
			Action:    r.Method + " " + r.URL.Path,
			Details:   details,
			IPAddress: httputil.ClientIP(r),
		}
		if err := s.auditor.Record(context.WithoutCancel(r.Context()), entry); err != nil {
			s.log.Warn().
				Err(err).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("action", entry.Action).
				Msg("failed to record request audit entry")
		}
	})
}
