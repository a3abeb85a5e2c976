package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperengineering/larder/internal/types"
)

// Row is one stored collection record. Data holds the typed fields the
// server understands, Extra the verbatim unknown fields (nil when none).
// UpdatedAt is epoch milliseconds; 0 means unknown and never wins a conflict.
type Row struct {
	ID        string
	Data      json.RawMessage
	Extra     json.RawMessage
	UpdatedAt int64
}

// Stats holds aggregate store statistics.
type Stats struct {
	UserCount     int64
	SchemaVersion int64
}

// Store defines the record-store contract the reconciliation engine relies on.
type Store interface {
	// UpsertIfNewer inserts the row, or overwrites the stored row only when
	// the stored updated_at is NULL or strictly older. It is a single
	// conditional statement. Returns whether the row was written.
	UpsertIfNewer(ctx context.Context, userID, collection string, row Row) (bool, error)

	// ReplaceCollections deletes every row of the given collections for the
	// user and inserts the supplied rows, all inside one transaction.
	// Inserted rows are stamped with now.
	ReplaceCollections(ctx context.Context, userID string, rows map[string][]Row, now time.Time) error

	ListRows(ctx context.Context, userID, collection string) ([]Row, error)
	CountRows(ctx context.Context, userID, collection string) (int64, error)

	GetSection(ctx context.Context, userID, section string) (json.RawMessage, error)
	PutSection(ctx context.Context, userID, section string, value json.RawMessage, now time.Time) error
	ListSections(ctx context.Context, userID string) (map[string]json.RawMessage, error)

	GetSyncMetadata(ctx context.Context, userID string) (*types.SyncMetadata, error)
	RecordSync(ctx context.Context, userID string, syncedAt time.Time, sections []string) error
	ListSyncedUsers(ctx context.Context) ([]string, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
