package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

// Metrics aggregates store counts and the mean create-to-ready duration.
func (s *SQLStore) Metrics(ctx context.Context) (model.Metrics, error) {
	metrics := model.Metrics{ByStatus: make(map[model.Status]int)}

	byStatus := s.sb.
		Select("status", "COUNT(*)").
		From("stores").
		Where(sq.Eq{"deleted_at": nil}).
		GroupBy("status")
	if err := s.scanStatusCounts(ctx, byStatus, &metrics); err != nil {
		return model.Metrics{}, err
	}

	totalCreated, err := s.count(ctx, s.sb.Select("COUNT(*)").From("stores"))
	if err != nil {
		return model.Metrics{}, err
	}
	metrics.TotalCreated = totalCreated

	totalDeleted, err := s.count(ctx, s.sb.Select("COUNT(*)").From("stores").Where(sq.NotEq{"deleted_at": nil}))
	if err != nil {
		return model.Metrics{}, err
	}
	metrics.TotalDeleted = totalDeleted

	avg, err := s.averageProvisionSeconds(ctx)
	if err != nil {
		return model.Metrics{}, err
	}
	metrics.AvgProvisionTimeSeconds = avg

	return metrics, nil
}

func (s *SQLStore) scanStatusCounts(ctx context.Context, query sq.SelectBuilder, metrics *model.Metrics) error {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building status count query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("counting stores by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return fmt.Errorf("scanning status count: %w", err)
		}
		metrics.ByStatus[model.Status(status)] = count
		metrics.TotalActive += count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating status counts: %w", err)
	}
	return nil
}

func (s *SQLStore) count(ctx context.Context, query sq.SelectBuilder) (int, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting stores: %w", err)
	}
	return count, nil
}

// averageProvisionSeconds is computed client-side so both dialects share one
// query shape.
func (s *SQLStore) averageProvisionSeconds(ctx context.Context) (*int64, error) {
	query := s.sb.
		Select("created_at", "ready_at").
		From("stores").
		Where(sq.NotEq{"ready_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building provision time query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("reading provision times: %w", err)
	}
	defer rows.Close()

	var (
		total float64
		n     int
	)
	for rows.Next() {
		var (
			createdAt sql.NullTime
			readyAt   sql.NullTime
		)
		if err := rows.Scan(&createdAt, &readyAt); err != nil {
			return nil, fmt.Errorf("scanning provision time: %w", err)
		}
		if !createdAt.Valid || !readyAt.Valid {
			continue
		}
		total += readyAt.Time.Sub(createdAt.Time).Seconds()
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provision times: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	avg := int64(math.Round(total / float64(n)))
	return &avg, nil
}
