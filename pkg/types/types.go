// Package types defines public request/response payloads for the store API.
package types

import (
	"encoding/json"
	"time"
)

const (
	// StatusProvisioning indicates the store's workloads are being deployed.
	StatusProvisioning = "Provisioning"
	// StatusReady indicates every store workload reported ready.
	StatusReady = "Ready"
	// StatusFailed indicates provisioning or teardown failed.
	StatusFailed = "Failed"
	// StatusDeleting indicates teardown is in progress.
	StatusDeleting = "Deleting"
	// StatusDeleted indicates the store and its resources are gone.
	StatusDeleted = "Deleted"
)

// CreateStoreRequest is the body for POST /api/stores.
type CreateStoreRequest struct {
	Name   string `json:"name"`
	Engine string `json:"engine,omitempty"`
}

// Store is the public store record. Field names follow the persisted columns.
type Store struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Engine       string     `json:"engine"`
	Status       string     `json:"status"`
	Namespace    string     `json:"namespace"`
	StoreURL     *string    `json:"store_url"`
	AdminURL     *string    `json:"admin_url"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ReadyAt      *time.Time `json:"ready_at"`
	DeletedAt    *time.Time `json:"deleted_at"`
}

// Pod is a live pod summary.
type Pod struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Restarts int32  `json:"restarts"`
}

// ClusterEvent is a live Kubernetes event in a store namespace.
type ClusterEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Object    string    `json:"object"`
	Timestamp time.Time `json:"timestamp"`
}

// StoreEvent is one lifecycle note on a store.
type StoreEvent struct {
	ID        int64     `json:"id"`
	StoreID   string    `json:"store_id"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreDetails is a store with its live cluster snapshot and recent events.
type StoreDetails struct {
	Store
	Pods      []Pod          `json:"pods"`
	K8sEvents []ClusterEvent `json:"k8sEvents"`
	Events    []StoreEvent   `json:"events"`
}

// AuditEntry records one mutating request.
type AuditEntry struct {
	ID        int64           `json:"id"`
	StoreID   *string         `json:"store_id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	IPAddress *string         `json:"ip_address"`
	CreatedAt time.Time       `json:"created_at"`
}

// Metrics aggregates store counts and admission state.
type Metrics struct {
	TotalActive             int            `json:"totalActive"`
	TotalCreated            int            `json:"totalCreated"`
	TotalDeleted            int            `json:"totalDeleted"`
	ByStatus                map[string]int `json:"byStatus"`
	AvgProvisionTimeSeconds *int64         `json:"avgProvisionTimeSeconds"`
	ActiveProvisions        int            `json:"activeProvisions"`
	MaxConcurrentProvisions int            `json:"maxConcurrentProvisions"`
}

// DeleteStoreResponse acknowledges an accepted delete.
type DeleteStoreResponse struct {
	Message string `json:"message"`
	StoreID string `json:"storeId"`
}

// StoreListResponse is the body of GET /api/stores.
type StoreListResponse struct {
	Stores []Store `json:"stores"`
}

// StoreResponse wraps a single store.
type StoreResponse struct {
	Store Store `json:"store"`
}

// StoreDetailsResponse is the body of GET /api/stores/{id}.
type StoreDetailsResponse struct {
	Store StoreDetails `json:"store"`
}

// EventListResponse is the body of the event listing endpoints.
type EventListResponse struct {
	Events []StoreEvent `json:"events"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Metrics Metrics `json:"metrics"`
}

// AuditLogResponse is the body of GET /api/audit-log.
type AuditLogResponse struct {
	AuditLog []AuditEntry `json:"auditLog"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconcileCounts summarizes one reconciliation pass.
type ReconcileCounts struct {
	Checked          int `json:"checked"`
	MarkedReady      int `json:"marked_ready"`
	MarkedFailed     int `json:"marked_failed"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
	OrphanNamespaces int `json:"orphan_namespaces"`
}

// ReconcileStatus is the body of the reconciliation status endpoints.
type ReconcileStatus struct {
	Ready          bool            `json:"ready"`
	InProgress     bool            `json:"in_progress"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	LastCounts     ReconcileCounts `json:"last_counts"`
	SuccessfulRuns int64           `json:"successful_runs"`
	FailedRuns     int64           `json:"failed_runs"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IsTerminalStatus reports whether no workflow will move a store out of status
// without a new request.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusReady, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}
