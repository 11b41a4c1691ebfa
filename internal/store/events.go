package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

const defaultStoreEventLimit = 50

// AppendEvent records a lifecycle event for a store.
func (s *SQLStore) AppendEvent(
	ctx context.Context,
	storeID string,
	eventType model.EventType,
	message string,
) (model.StoreEvent, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return model.StoreEvent{}, fmt.Errorf("store id is required")
	}

	event := model.StoreEvent{
		StoreID:   storeID,
		Type:      eventType,
		Message:   message,
		CreatedAt: s.now(),
	}

	query := s.sb.
		Insert("store_events").
		Columns("store_id", "event_type", "message", "created_at").
		Values(event.StoreID, string(event.Type), event.Message, event.CreatedAt).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.StoreEvent{}, fmt.Errorf("building store event insert query: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&event.ID); err != nil {
		return model.StoreEvent{}, fmt.Errorf("inserting store event for %q: %w", storeID, err)
	}
	return event, nil
}

// ListStoreEvents returns a store's events, newest first.
func (s *SQLStore) ListStoreEvents(ctx context.Context, storeID string, limit int) ([]model.StoreEvent, error) {
	if limit <= 0 {
		limit = defaultStoreEventLimit
	}
	query := s.sb.
		Select("id", "store_id", "event_type", "message", "created_at").
		From("store_events").
		Where(sq.Eq{"store_id": strings.TrimSpace(storeID)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(normalizePageLimit(limit)))
	return s.listEvents(ctx, query)
}

// ListEvents returns events across all stores, newest first.
func (s *SQLStore) ListEvents(ctx context.Context, limit int) ([]model.StoreEvent, error) {
	query := s.sb.
		Select("id", "store_id", "event_type", "message", "created_at").
		From("store_events").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(normalizePageLimit(limit)))
	return s.listEvents(ctx, query)
}

func (s *SQLStore) listEvents(ctx context.Context, query sq.SelectBuilder) ([]model.StoreEvent, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building store event list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing store events: %w", err)
	}
	defer rows.Close()

	events := make([]model.StoreEvent, 0)
	for rows.Next() {
		var (
			event     model.StoreEvent
			eventType string
		)
		if err := rows.Scan(&event.ID, &event.StoreID, &eventType, &event.Message, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning store event: %w", err)
		}
		event.Type = model.EventType(eventType)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating store events: %w", err)
	}
	return events, nil
}

// AppendAudit records one audit entry.
func (s *SQLStore) AppendAudit(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		return model.AuditEntry{}, fmt.Errorf("audit action is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	var details any
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}

	query := s.sb.
		Insert("audit_log").
		Columns("store_id", "action", "details", "ip_address", "created_at").
		Values(
			emptyAsNull(entry.StoreID),
			entry.Action,
			details,
			emptyAsNull(entry.IPAddress),
			entry.CreatedAt.UTC(),
		).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("building audit insert query: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&entry.ID); err != nil {
		return model.AuditEntry{}, fmt.Errorf("inserting audit entry %q: %w", entry.Action, err)
	}
	return entry, nil
}

// ListAudit returns audit entries, newest first.
func (s *SQLStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	query := s.sb.
		Select("id", "store_id", "action", "details", "ip_address", "created_at").
		From("audit_log").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(normalizePageLimit(limit)))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			entry     model.AuditEntry
			storeID   sql.NullString
			details   sql.NullString
			ipAddress sql.NullString
		)
		if err := rows.Scan(&entry.ID, &storeID, &entry.Action, &details, &ipAddress, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.StoreID = storeID.String
		entry.IPAddress = ipAddress.String
		if details.Valid {
			entry.Details = []byte(details.String)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func emptyAsNull(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
