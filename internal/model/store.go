// Package model holds the store lifecycle domain types shared across packages.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle state of a store.
type Status string

// Store lifecycle statuses.
const (
	StatusProvisioning Status = "Provisioning"
	StatusReady        Status = "Ready"
	StatusFailed       Status = "Failed"
	StatusDeleting     Status = "Deleting"
	StatusDeleted      Status = "Deleted"
)

var (
	// ErrInvalidTransition indicates a status change outside the lifecycle table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownStatus indicates a status string outside the closed set.
	ErrUnknownStatus = errors.New("unknown store status")
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusProvisioning,
	StatusReady,
	StatusFailed,
	StatusDeleting,
	StatusDeleted,
}

var transitions = map[Status][]Status{
	StatusProvisioning: {StatusReady, StatusFailed, StatusDeleting},
	StatusReady:        {StatusDeleting},
	StatusFailed:       {StatusDeleting},
	StatusDeleting:     {StatusDeleted, StatusFailed},
	StatusDeleted:      {},
}

// ParseStatus converts a persisted status string into a Status.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDeleted
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether from -> to is an edge of the lifecycle table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for edges outside the table.
func ValidateTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

var storeNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidStoreName reports whether name is a DNS label: lowercase alphanumerics
// and hyphens, 1-63 characters, no leading or trailing hyphen.
func ValidStoreName(name string) bool {
	return storeNamePattern.MatchString(name)
}

// Store is the persisted lifecycle record of one provisioned instance.
type Store struct {
	ID           string
	Name         string
	Engine       string
	Status       Status
	Namespace    string
	StoreURL     *string
	AdminURL     *string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ReadyAt      *time.Time
	DeletedAt    *time.Time
}

// StatusUpdate describes one status transition and the fields written with it.
// Nil pointers leave the stored value unchanged.
type StatusUpdate struct {
	Status       Status
	StoreURL     *string
	AdminURL     *string
	ErrorMessage *string
	ClearError   bool
}

// EventType classifies a store event.
type EventType string

// Store event types.
const (
	EventInfo    EventType = "info"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

// StoreEvent is an immutable note on a store's lifecycle.
type StoreEvent struct {
	ID        int64
	StoreID   string
	Type      EventType
	Message   string
	CreatedAt time.Time
}

// AuditEntry records one mutating external request.
type AuditEntry struct {
	ID        int64
	StoreID   string
	Action    string
	Details   []byte
	IPAddress string
	CreatedAt time.Time
}

// Audit actions recorded by the orchestrator.
const (
	AuditActionCreateStore = "CREATE_STORE"
	AuditActionDeleteStore = "DELETE_STORE"
)

// Metrics is the repository-side aggregation of store records.
type Metrics struct {
	TotalActive             int
	TotalCreated            int
	TotalDeleted            int
	ByStatus                map[Status]int
	AvgProvisionTimeSeconds *int64
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
