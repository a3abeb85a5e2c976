package store

import (
	"context"
	"fmt"
	"time"
)

// upsertIfNewerSQL is the conditional write. The comparison against the
// stored timestamp lives in the statement's own WHERE clause, so two
// concurrent writers of the same id cannot lose an update. Ties keep the
// stored row.
const upsertIfNewerSQL = `
	INSERT INTO %[1]s (user_id, %[2]s, data, extra_data, updated_at, created_at, deleted_at)
	VALUES (?, ?, ?, ?, ?, ?, NULL)
	ON CONFLICT(user_id, %[2]s) DO UPDATE SET
		data = excluded.data,
		extra_data = excluded.extra_data,
		updated_at = excluded.updated_at,
		deleted_at = NULL
	WHERE %[1]s.updated_at IS NULL OR %[1]s.updated_at < excluded.updated_at`

// UpsertIfNewer performs the last-write-wins upsert for one row.
func (s *SQLiteStore) UpsertIfNewer(ctx context.Context, userID, collection string, row Row) (bool, error) {
	t, err := tableFor(collection)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(upsertIfNewerSQL, t.Name, t.KeyColumn),
		userID,
		row.ID,
		string(row.Data),
		nullableJSON(row.Extra),
		row.UpdatedAt,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert %s row %s: %w", t.Name, row.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return affected > 0, nil
}
