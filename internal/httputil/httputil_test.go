package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHESHU45/UrumiAssignment/internal/metrics"
	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusConflict, "Store with name \"acme\" already exists")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `Store with name "acme" already exists`, body.Error)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"name":"acme"}`},
		{name: "empty", body: "", wantErr: "request body is empty"},
		{name: "trailing object", body: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON object"},
		{name: "malformed", body: `{"name":`, wantErr: "unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var out types.CreateStoreRequest
			err := DecodeJSON(req, &out)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "acme", out.Name)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	handler := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var out map[string]string
		if err := DecodeJSON(r, &out); err != nil {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	body := `{"name":"` + strings.Repeat("a", 64) + `"}`
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds 16 bytes")
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetReqID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces")
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "bad id with spaces", seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	first := seen
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, first, seen)
}

func TestRecoverer(t *testing.T) {
	var logs bytes.Buffer
	handler := Recoverer(zerolog.New(&logs))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "handler panic")
}

func TestRequestLogger(t *testing.T) {
	var logs bytes.Buffer
	handler := RequestID(RequestLogger(zerolog.New(&logs))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stores", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/stores", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.NotEmpty(t, line["request_id"])
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowedOrigins:        []string{"http://localhost:5173/"},
		AllowedOriginSuffixes: []string{".store.localhost"},
		AllowedMethods:        []string{"GET", "POST", "DELETE"},
		AllowedHeaders:        []string{"Content-Type"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{name: "exact origin", method: http.MethodGet, origin: "http://localhost:5173", wantStatus: http.StatusAccepted, wantAllow: "http://localhost:5173"},
		{name: "store subdomain", method: http.MethodGet, origin: "http://acme.store.localhost", wantStatus: http.StatusAccepted, wantAllow: "http://acme.store.localhost"},
		{name: "store subdomain with port", method: http.MethodGet, origin: "https://acme.store.localhost:8443", wantStatus: http.StatusAccepted, wantAllow: "https://acme.store.localhost:8443"},
		{name: "foreign origin", method: http.MethodGet, origin: "http://evil.example.com", wantStatus: http.StatusAccepted},
		{name: "suffix without scheme", method: http.MethodGet, origin: "acme.store.localhost", wantStatus: http.StatusAccepted},
		{name: "preflight", method: http.MethodOptions, origin: "http://localhost:5173", preflight: true, wantStatus: http.StatusOK, wantAllow: "http://localhost:5173"},
		{name: "preflight foreign origin", method: http.MethodOptions, origin: "http://evil.example.com", preflight: true, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/stores", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
				req.Header.Set("Access-Control-Request-Headers", "content-type")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight && tt.wantAllow != "" {
				assert.Equal(t, "DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	recorder := metrics.New()
	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Get("/api/stores/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stores/abc12345", nil))

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(),
		`store_platform_http_requests_total{method="GET",path="/api/stores/{id}",status="404"} 1`)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))
}

func TestProbeHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.WithinDuration(t, time.Now(), health.Timestamp, time.Minute)

	rec = httptest.NewRecorder()
	ReadinessHandler(func() error { return errors.New("database is closed") }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is closed")

	rec = httptest.NewRecorder()
	ReadinessHandler(func() error { return nil }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	VersionHandler("1.2.3", "abc", "2026-10-01").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.JSONEq(t, `{"version":"1.2.3","commit":"abc","buildDate":"2026-10-01"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	OpenAPIHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	OpenAPIHandler([]byte("openapi: 3.0.3\n")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil))
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "openapi: 3.0.3\n", rec.Body.String())
}
