// Package events publishes store lifecycle changes as CloudEvents-style
// envelopes.
package events

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const (
	// SpecVersion is the CloudEvents spec version of every envelope.
	SpecVersion = "1.0"
	// JSONDataContentType is the content type of event data.
	JSONDataContentType = "application/json"

	storeLifecycleEventType = "store_platform.stores.lifecycle"
	storeEventSource        = "store-platform"
)

var (
	readEventRandom = rand.Read
	marshalEvent    = json.Marshal
	eventNow        = time.Now
)

// Event is one published envelope.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// StoreSnapshot is the data payload of a lifecycle event.
type StoreSnapshot struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Engine       string     `json:"engine"`
	Status       string     `json:"status"`
	Namespace    string     `json:"namespace"`
	StoreURL     *string    `json:"storeUrl,omitempty"`
	AdminURL     *string    `json:"adminUrl,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	ReadyAt      *time.Time `json:"readyAt,omitempty"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// NewStoreLifecycleEvent builds the envelope announcing st's current status.
func NewStoreLifecycleEvent(st model.Store) (Event, error) {
	storeID := strings.TrimSpace(st.ID)
	if storeID == "" {
		return Event{}, fmt.Errorf("store id is required")
	}

	eventID, err := newEventID()
	if err != nil {
		return Event{}, err
	}

	data, err := marshalEvent(StoreSnapshot{
		ID:           storeID,
		Name:         st.Name,
		Engine:       st.Engine,
		Status:       string(st.Status),
		Namespace:    st.Namespace,
		StoreURL:     st.StoreURL,
		AdminURL:     st.AdminURL,
		ErrorMessage: st.ErrorMessage,
		CreatedAt:    st.CreatedAt.UTC(),
		UpdatedAt:    st.UpdatedAt.UTC(),
		ReadyAt:      utcTimePtr(st.ReadyAt),
		DeletedAt:    utcTimePtr(st.DeletedAt),
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshaling store lifecycle payload: %w", err)
	}

	return Event{
		SpecVersion:     SpecVersion,
		ID:              eventID,
		Source:          storeEventSource,
		Type:            storeLifecycleEventType,
		Subject:         storeID,
		Time:            eventNow().UTC(),
		DataContentType: JSONDataContentType,
		Data:            data,
	}, nil
}

// Subject returns the NATS subject for a store reaching status.
func Subject(prefix string, status model.Status) string {
	return strings.Trim(prefix, ".") + "." + strings.ToLower(string(status))
}

func newEventID() (string, error) {
	var id [16]byte
	if _, err := readEventRandom(id[:]); err != nil {
		return "", fmt.Errorf("generating event id: %w", err)
	}
	return "evt-" + hex.EncodeToString(id[:]), nil
}

func utcTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	t := value.UTC()
	return &t
}
