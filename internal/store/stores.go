package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

var storeColumns = []string{
	"id",
	"name",
	"engine",
	"status",
	"namespace",
	"store_url",
	"admin_url",
	"error_message",
	"created_at",
	"updated_at",
	"ready_at",
	"deleted_at",
}

// CreateStore inserts a new store record. A name already held by a
// non-deleted store yields ErrConflict.
func (s *SQLStore) CreateStore(ctx context.Context, st model.Store) (model.Store, error) {
	st.ID = strings.TrimSpace(st.ID)
	if st.ID == "" {
		return model.Store{}, fmt.Errorf("store id is required")
	}
	if st.Status == "" {
		st.Status = model.StatusProvisioning
	}
	now := s.now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = st.CreatedAt
	}

	query := s.sb.
		Insert("stores").
		Columns(storeColumns...).
		Values(
			st.ID,
			st.Name,
			st.Engine,
			string(st.Status),
			st.Namespace,
			optionalStringValue(st.StoreURL),
			optionalStringValue(st.AdminURL),
			optionalStringValue(st.ErrorMessage),
			st.CreatedAt.UTC(),
			st.UpdatedAt.UTC(),
			optionalTimeValue(st.ReadyAt),
			optionalTimeValue(st.DeletedAt),
		)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Store{}, fmt.Errorf("building store insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Store{}, fmt.Errorf("%w: store name %q is already in use", ErrConflict, st.Name)
		}
		return model.Store{}, fmt.Errorf("inserting store %q: %w", st.ID, err)
	}

	return s.GetStore(ctx, st.ID)
}

// GetStore returns a non-deleted store by ID.
func (s *SQLStore) GetStore(ctx context.Context, id string) (model.Store, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Store{}, ErrNotFound
	}
	return s.getStoreWhere(ctx, sq.Eq{"id": id})
}

// GetStoreByName returns the non-deleted store holding name.
func (s *SQLStore) GetStoreByName(ctx context.Context, name string) (model.Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Store{}, ErrNotFound
	}
	return s.getStoreWhere(ctx, sq.Eq{"name": name})
}

func (s *SQLStore) getStoreWhere(ctx context.Context, pred sq.Eq) (model.Store, error) {
	query := s.sb.
		Select(storeColumns...).
		From("stores").
		Where(pred).
		Where(sq.Eq{"deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Store{}, fmt.Errorf("building store get query: %w", err)
	}

	st, err := scanStore(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Store{}, ErrNotFound
		}
		return model.Store{}, err
	}
	return st, nil
}

// ListActiveStores returns all non-deleted stores, newest first.
func (s *SQLStore) ListActiveStores(ctx context.Context) ([]model.Store, error) {
	query := s.sb.
		Select(storeColumns...).
		From("stores").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("created_at DESC", "id DESC")
	return s.listStores(ctx, query)
}

// ListStoresByStatus returns non-deleted stores in the given status, oldest first.
func (s *SQLStore) ListStoresByStatus(ctx context.Context, status model.Status) ([]model.Store, error) {
	query := s.sb.
		Select(storeColumns...).
		From("stores").
		Where(sq.Eq{"status": string(status), "deleted_at": nil}).
		OrderBy("created_at ASC", "id ASC")
	return s.listStores(ctx, query)
}

func (s *SQLStore) listStores(ctx context.Context, query sq.SelectBuilder) ([]model.Store, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building store list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	defer rows.Close()

	stores := make([]model.Store, 0)
	for rows.Next() {
		st, scanErr := scanStore(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stores: %w", err)
	}
	return stores, nil
}

// CountActiveStores counts stores that hold quota: not deleted and not failed.
func (s *SQLStore) CountActiveStores(ctx context.Context) (int, error) {
	query := s.sb.
		Select("COUNT(*)").
		From("stores").
		Where(sq.Eq{"deleted_at": nil}).
		Where(sq.NotEq{"status": string(model.StatusFailed)})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building active store count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting active stores: %w", err)
	}
	return count, nil
}

// TransitionStore applies a status change guarded by the expected current status.
func (s *SQLStore) TransitionStore(
	ctx context.Context,
	id string,
	from model.Status,
	update model.StatusUpdate,
) (model.Store, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Store{}, ErrNotFound
	}
	if err := model.ValidateTransition(from, update.Status); err != nil {
		return model.Store{}, err
	}

	now := s.now()
	query := s.sb.
		Update("stores").
		Set("status", string(update.Status)).
		Set("updated_at", now)

	if update.StoreURL != nil {
		query = query.Set("store_url", *update.StoreURL)
	}
	if update.AdminURL != nil {
		query = query.Set("admin_url", *update.AdminURL)
	}
	switch {
	case update.ClearError:
		query = query.Set("error_message", nil)
	case update.ErrorMessage != nil:
		query = query.Set("error_message", *update.ErrorMessage)
	}
	switch update.Status {
	case model.StatusReady:
		query = query.Set("ready_at", sq.Expr("COALESCE(ready_at, ?)", now))
	case model.StatusDeleted:
		query = query.Set("deleted_at", now)
	}

	query = query.Where(sq.Eq{"id": id, "status": string(from), "deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Store{}, fmt.Errorf("building store transition query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return model.Store{}, fmt.Errorf("transitioning store %q to %s: %w", id, update.Status, err)
	}

	affected, err := rowsAffectedAsInt(res, "store transition")
	if err != nil {
		return model.Store{}, err
	}
	if affected == 0 {
		current, getErr := s.GetStore(ctx, id)
		if getErr != nil {
			return model.Store{}, getErr
		}
		return current, fmt.Errorf("%w: store %q is %s, expected %s", ErrConflict, id, current.Status, from)
	}

	if update.Status == model.StatusDeleted {
		return s.getDeletedStore(ctx, id)
	}
	return s.GetStore(ctx, id)
}

// MarkDeleted moves a Deleting store to the terminal Deleted status.
func (s *SQLStore) MarkDeleted(ctx context.Context, id string) (model.Store, error) {
	return s.TransitionStore(ctx, id, model.StatusDeleting, model.StatusUpdate{Status: model.StatusDeleted})
}

func (s *SQLStore) getDeletedStore(ctx context.Context, id string) (model.Store, error) {
	query := s.sb.
		Select(storeColumns...).
		From("stores").
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Store{}, fmt.Errorf("building store get query: %w", err)
	}

	st, err := scanStore(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Store{}, ErrNotFound
		}
		return model.Store{}, err
	}
	return st, nil
}

func scanStore(scanner interface {
	Scan(dest ...any) error
}) (model.Store, error) {
	var (
		st           model.Store
		status       string
		storeURL     sql.NullString
		adminURL     sql.NullString
		errorMessage sql.NullString
		readyAt      sql.NullTime
		deletedAt    sql.NullTime
	)

	if err := scanner.Scan(
		&st.ID,
		&st.Name,
		&st.Engine,
		&status,
		&st.Namespace,
		&storeURL,
		&adminURL,
		&errorMessage,
		&st.CreatedAt,
		&st.UpdatedAt,
		&readyAt,
		&deletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Store{}, err
		}
		return model.Store{}, fmt.Errorf("scanning store: %w", err)
	}

	parsed, err := model.ParseStatus(status)
	if err != nil {
		return model.Store{}, fmt.Errorf("scanning store %q: %w", st.ID, err)
	}
	st.Status = parsed
	st.StoreURL = nullStringPtr(storeURL)
	st.AdminURL = nullStringPtr(adminURL)
	st.ErrorMessage = nullStringPtr(errorMessage)
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	st.ReadyAt = nullTimePtr(readyAt)
	st.DeletedAt = nullTimePtr(deletedAt)
	return st, nil
}
