package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/larder/internal/types"
)

// AppendFailure persists one failure record.
func (s *SQLiteStore) AppendFailure(ctx context.Context, userID string, rec types.FailureRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_failures (id, user_id, data_type, operation, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, userID, rec.DataType, rec.Operation, rec.ErrorMessage, rec.Timestamp.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("append failure: %w", err)
	}
	return nil
}

// ListFailures returns up to limit failures recorded at or after since,
// newest first.
func (s *SQLiteStore) ListFailures(ctx context.Context, userID string, since time.Time, limit int) ([]types.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data_type, operation, error_message, created_at
		FROM sync_failures
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, since.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	records := make([]types.FailureRecord, 0)
	for rows.Next() {
		var rec types.FailureRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.DataType, &rec.Operation, &rec.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		rec.Timestamp = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountFailures returns the number of failures recorded at or after since.
func (s *SQLiteStore) CountFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_failures WHERE user_id = ? AND created_at >= ?
	`, userID, since.UTC().UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return count, nil
}

// TrimFailures keeps only the newest keep failures for the user.
func (s *SQLiteStore) TrimFailures(ctx context.Context, userID string, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_failures
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM sync_failures
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, userID, userID, keep)
	if err != nil {
		return fmt.Errorf("trim failures: %w", err)
	}
	return nil
}

// DeleteFailuresBefore removes failures older than before.
// Returns the number of rows removed.
func (s *SQLiteStore) DeleteFailuresBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_failures WHERE created_at < ?
	`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired failures: %w", err)
	}
	return result.RowsAffected()
}
