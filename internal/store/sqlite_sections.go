package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/larder/internal/types"
)

// GetSection returns the stored blob for a KV section.
// Returns ErrNotFound when the user has no such section.
func (s *SQLiteStore) GetSection(ctx context.Context, userID, section string) (json.RawMessage, error) {
	if !validSection(section) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}

	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv_sections WHERE user_id = ? AND section = ?
	`, userID, section).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("section %q: %w", section, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}
	return json.RawMessage(value), nil
}

// PutSection overwrites the stored blob for a KV section.
func (s *SQLiteStore) PutSection(ctx context.Context, userID, section string, value json.RawMessage, now time.Time) error {
	if !validSection(section) {
		return fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_sections (user_id, section, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, section) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, userID, section, string(value), now.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put section %s: %w", section, err)
	}
	return nil
}

// ListSections returns every stored section for the user keyed by name.
func (s *SQLiteStore) ListSections(ctx context.Context, userID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section, value FROM kv_sections WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	sections := make(map[string]json.RawMessage)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections[name] = json.RawMessage(value)
	}
	return sections, rows.Err()
}

// GetSyncMetadata returns the sync bookkeeping row for the user.
// Returns ErrNotFound when the user has never synced.
func (s *SQLiteStore) GetSyncMetadata(ctx context.Context, userID string) (*types.SyncMetadata, error) {
	var lastSynced sql.NullInt64
	var sectionsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT last_synced_at, section_updated_at FROM sync_metadata WHERE user_id = ?
	`, userID).Scan(&lastSynced, &sectionsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync metadata for %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata: %w", err)
	}

	meta := &types.SyncMetadata{
		UserID:           userID,
		SectionUpdatedAt: decodeSectionTimes(sectionsJSON),
	}
	if lastSynced.Valid {
		t := time.UnixMilli(lastSynced.Int64).UTC()
		meta.LastSyncedAt = &t
	}
	return meta, nil
}

// RecordSync marks the user as synced at syncedAt and stamps the touched
// sections. The section map is merged, not replaced.
func (s *SQLiteStore) RecordSync(ctx context.Context, userID string, syncedAt time.Time, sections []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sectionsJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT section_updated_at FROM sync_metadata WHERE user_id = ?
	`, userID).Scan(&sectionsJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read sync metadata: %w", err)
	}

	stamps := make(map[string]int64)
	for name, t := range decodeSectionTimes(sectionsJSON) {
		stamps[name] = t.UnixMilli()
	}
	ms := syncedAt.UTC().UnixMilli()
	for _, name := range sections {
		stamps[name] = ms
	}
	encoded, err := json.Marshal(stamps)
	if err != nil {
		return fmt.Errorf("encode section times: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_metadata (user_id, last_synced_at, section_updated_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			section_updated_at = excluded.section_updated_at,
			updated_at = excluded.updated_at
	`, userID, ms, string(encoded), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("write sync metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListSyncedUsers returns every user that has completed at least one sync.
func (s *SQLiteStore) ListSyncedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM sync_metadata
		WHERE last_synced_at IS NOT NULL
		ORDER BY user_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query synced users: %w", err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// decodeSectionTimes parses the section_updated_at column (name -> epoch ms).
func decodeSectionTimes(raw string) map[string]time.Time {
	out := make(map[string]time.Time)
	if raw == "" {
		return out
	}
	var stamps map[string]int64
	if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
		slog.Warn("sync_metadata: failed to parse section_updated_at", "value", raw, "error", err)
		return out
	}
	for name, ms := range stamps {
		out[name] = time.UnixMilli(ms).UTC()
	}
	return out
}
