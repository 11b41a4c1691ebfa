// Package client provides a typed HTTP client SDK for the store platform API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryInterval    = 250 * time.Millisecond
	defaultWaitPollInterval = 2 * time.Second
	maxErrorBodyBytes       = 64 << 10

	storesPath    = "/api/stores"
	eventsPath    = "/api/events"
	metricsPath   = "/api/metrics"
	auditLogPath  = "/api/audit-log"
	healthPath    = "/api/health"
	reconcilePath = "/api/reconcile"
)

// Config holds store platform client configuration.
type Config struct {
	// BaseURL is the root URL of the API (for example: http://localhost:3001).
	BaseURL string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts for transient errors on
	// idempotent requests. Negative disables retries.
	MaxRetries int
	// RetryInterval is the initial backoff between retries. Defaults to 250ms.
	RetryInterval time.Duration
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store platform API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("store platform API returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the typed HTTP SDK for the store API.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
}

// WaitOptions configures polling behavior in WaitForStatus.
type WaitOptions struct {
	Interval time.Duration
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	cfg.BaseURL = baseURL

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{http: httpClient, baseURL: baseURL, cfg: cfg}, nil
}

// ListStores returns all active stores, newest first.
func (c *Client) ListStores(ctx context.Context) ([]types.Store, error) {
	var result types.StoreListResponse
	if err := c.do(ctx, http.MethodGet, storesPath, nil, &result); err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	return result.Stores, nil
}

// GetStore returns one store with its live cluster snapshot.
func (c *Client) GetStore(ctx context.Context, id string) (*types.StoreDetails, error) {
	storeID := strings.TrimSpace(id)
	if storeID == "" {
		return nil, fmt.Errorf("store id is required")
	}

	var result types.StoreDetailsResponse
	if err := c.do(ctx, http.MethodGet, storePath(storeID), nil, &result); err != nil {
		return nil, fmt.Errorf("getting store %q: %w", storeID, err)
	}
	return &result.Store, nil
}

// CreateStore requests a new store. Provisioning continues asynchronously.
func (c *Client) CreateStore(ctx context.Context, req types.CreateStoreRequest) (*types.Store, error) {
	var result types.StoreResponse
	if err := c.do(ctx, http.MethodPost, storesPath, req, &result); err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return &result.Store, nil
}

// DeleteStore requests teardown of a store.
func (c *Client) DeleteStore(ctx context.Context, id string) (*types.DeleteStoreResponse, error) {
	storeID := strings.TrimSpace(id)
	if storeID == "" {
		return nil, fmt.Errorf("store id is required")
	}

	var result types.DeleteStoreResponse
	if err := c.do(ctx, http.MethodDelete, storePath(storeID), nil, &result); err != nil {
		return nil, fmt.Errorf("deleting store %q: %w", storeID, err)
	}
	return &result, nil
}

// ListStoreEvents returns one store's lifecycle events, newest first.
func (c *Client) ListStoreEvents(ctx context.Context, id string, limit int) ([]types.StoreEvent, error) {
	storeID := strings.TrimSpace(id)
	if storeID == "" {
		return nil, fmt.Errorf("store id is required")
	}

	var result types.EventListResponse
	if err := c.do(ctx, http.MethodGet, withLimit(storePath(storeID)+"/events", limit), nil, &result); err != nil {
		return nil, fmt.Errorf("listing events of store %q: %w", storeID, err)
	}
	return result.Events, nil
}

// ListEvents returns lifecycle events across all stores, newest first.
func (c *Client) ListEvents(ctx context.Context, limit int) ([]types.StoreEvent, error) {
	var result types.EventListResponse
	if err := c.do(ctx, http.MethodGet, withLimit(eventsPath, limit), nil, &result); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return result.Events, nil
}

// Metrics returns platform aggregates.
func (c *Client) Metrics(ctx context.Context) (*types.Metrics, error) {
	var result types.MetricsResponse
	if err := c.do(ctx, http.MethodGet, metricsPath, nil, &result); err != nil {
		return nil, fmt.Errorf("getting metrics: %w", err)
	}
	return &result.Metrics, nil
}

// AuditLog returns audit entries, newest first.
func (c *Client) AuditLog(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	var result types.AuditLogResponse
	if err := c.do(ctx, http.MethodGet, withLimit(auditLogPath, limit), nil, &result); err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	return result.AuditLog, nil
}

// Health checks API liveness.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var result types.HealthResponse
	if err := c.do(ctx, http.MethodGet, healthPath, nil, &result); err != nil {
		return nil, fmt.Errorf("checking health: %w", err)
	}
	return &result, nil
}

// ReconcileStatus returns the reconciliation loop status.
func (c *Client) ReconcileStatus(ctx context.Context) (*types.ReconcileStatus, error) {
	var result types.ReconcileStatus
	if err := c.do(ctx, http.MethodGet, reconcilePath, nil, &result); err != nil {
		return nil, fmt.Errorf("getting reconcile status: %w", err)
	}
	return &result, nil
}

// TriggerReconcile runs one reconciliation pass and returns the new status.
func (c *Client) TriggerReconcile(ctx context.Context) (*types.ReconcileStatus, error) {
	var result types.ReconcileStatus
	if err := c.do(ctx, http.MethodPost, reconcilePath, nil, &result); err != nil {
		return nil, fmt.Errorf("triggering reconciliation: %w", err)
	}
	return &result, nil
}

// WaitForStatus polls a store until it reaches a terminal status. A store
// that disappears while waiting is reported as Deleted.
func (c *Client) WaitForStatus(ctx context.Context, id string, opts WaitOptions) (*types.StoreDetails, error) {
	storeID := strings.TrimSpace(id)
	if storeID == "" {
		return nil, fmt.Errorf("store id is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultWaitPollInterval
	}

	for {
		st, err := c.GetStore(ctx, storeID)
		switch {
		case IsNotFound(err):
			return &types.StoreDetails{Store: types.Store{ID: storeID, Status: types.StatusDeleted}}, nil
		case err != nil:
			return nil, fmt.Errorf("waiting for store %q: %w", storeID, err)
		case types.IsTerminalStatus(st.Status):
			return st, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for store %q: %w", storeID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = encoded
	}

	attempts := uint(1)
	if method == http.MethodGet && c.cfg.MaxRetries > 0 {
		attempts += uint(c.cfg.MaxRetries)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.send(ctx, method, path, payload, out)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(attempts))
	return err
}

// send performs one attempt. Errors that retrying cannot fix are permanent.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(resp)
		if retryableStatus(resp.StatusCode) {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body types.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func storePath(id string) string {
	return storesPath + "/" + url.PathEscape(id)
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return path + "?" + params.Encode()
}
