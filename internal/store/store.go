// Package store defines persistence contracts for the store platform.
package store

import (
	"context"
	"errors"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

var (
	// ErrNotFound indicates the requested record does not exist or is deleted.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation or a concurrent status change.
	ErrConflict = errors.New("conflict")
)

// Store is the durable record of store metadata, lifecycle events, and audit trail.
type Store interface {
	// Ping checks DB connectivity for readiness probes.
	Ping(ctx context.Context) error

	CreateStore(ctx context.Context, st model.Store) (model.Store, error)
	GetStore(ctx context.Context, id string) (model.Store, error)
	GetStoreByName(ctx context.Context, name string) (model.Store, error)
	ListActiveStores(ctx context.Context) ([]model.Store, error)
	ListStoresByStatus(ctx context.Context, status model.Status) ([]model.Store, error)
	CountActiveStores(ctx context.Context) (int, error)

	// TransitionStore moves a store from the expected status to update.Status.
	// It returns ErrConflict together with the current record when the store
	// is no longer in the expected status.
	TransitionStore(ctx context.Context, id string, from model.Status, update model.StatusUpdate) (model.Store, error)
	MarkDeleted(ctx context.Context, id string) (model.Store, error)

	AppendEvent(ctx context.Context, storeID string, eventType model.EventType, message string) (model.StoreEvent, error)
	ListStoreEvents(ctx context.Context, storeID string, limit int) ([]model.StoreEvent, error)
	ListEvents(ctx context.Context, limit int) ([]model.StoreEvent, error)

	AppendAudit(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)

	Metrics(ctx context.Context) (model.Metrics, error)
}
