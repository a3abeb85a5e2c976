package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetPlanLimit returns the per-user limit override for a collection.
// -1 means unlimited. Returns ErrNotFound when no override exists.
func (s *SQLiteStore) GetPlanLimit(ctx context.Context, userID, collection string) (int64, error) {
	var limit int64
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_limit FROM user_plans WHERE user_id = ? AND collection = ?
	`, userID, collection).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("plan limit %s/%s: %w", userID, collection, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get plan limit: %w", err)
	}
	return limit, nil
}

// SetPlanLimit stores a per-user limit override for a collection.
func (s *SQLiteStore) SetPlanLimit(ctx context.Context, userID, collection string, limit int64) error {
	if _, err := tableFor(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_plans (user_id, collection, plan_limit, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, collection) DO UPDATE SET
			plan_limit = excluded.plan_limit,
			updated_at = excluded.updated_at
	`, userID, collection, limit, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set plan limit: %w", err)
	}
	return nil
}
