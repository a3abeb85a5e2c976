package store

import (
	"context"
	"fmt"
	"time"
)

// ReplaceCollections deletes and re-inserts whole collections atomically.
// Any failure rolls back every collection passed in the same call.
func (s *SQLiteStore) ReplaceCollections(ctx context.Context, userID string, rows map[string][]Row, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stamp := now.UTC().UnixMilli()
	for collection, collectionRows := range rows {
		t, err := tableFor(collection)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", t.Name), userID); err != nil {
			return fmt.Errorf("delete %s: %w", t.Name, err)
		}

		if len(collectionRows) == 0 {
			continue
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (user_id, %s, data, extra_data, updated_at, created_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL)
		`, t.Name, t.KeyColumn))
		if err != nil {
			return fmt.Errorf("prepare %s insert: %w", t.Name, err)
		}

		for _, r := range collectionRows {
			if _, err := stmt.ExecContext(ctx,
				userID, r.ID, string(r.Data), nullableJSON(r.Extra), stamp, stamp,
			); err != nil {
				stmt.Close()
				return fmt.Errorf("insert %s row %s: %w", t.Name, r.ID, err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
