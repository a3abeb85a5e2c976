package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/larder/internal/types"
)

// FailureStore persists failure records. Implemented by store.SQLiteStore.
type FailureStore interface {
	AppendFailure(ctx context.Context, userID string, rec types.FailureRecord) error
	ListFailures(ctx context.Context, userID string, since time.Time, limit int) ([]types.FailureRecord, error)
	CountFailures(ctx context.Context, userID string, since time.Time) (int, error)
	TrimFailures(ctx context.Context, userID string, keep int) error
	DeleteFailuresBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteLedger keeps failures in the sync_failures table so that every
// server instance sharing the database sees the same ledger.
type SQLiteLedger struct {
	store FailureStore
	opts  Options
}

// NewSQLiteLedger creates a ledger backed by fs.
func NewSQLiteLedger(fs FailureStore, opts Options) *SQLiteLedger {
	return &SQLiteLedger{store: fs, opts: opts.withDefaults()}
}

func (l *SQLiteLedger) Record(ctx context.Context, userID string, rec types.FailureRecord) error {
	rec = stamp(rec, l.opts.Now())
	if err := l.store.AppendFailure(ctx, userID, rec); err != nil {
		return err
	}
	if err := l.store.TrimFailures(ctx, userID, l.opts.MaxPerUser); err != nil {
		return fmt.Errorf("trim ledger: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Recent(ctx context.Context, userID string, limit int) ([]types.FailureRecord, int, error) {
	since := l.opts.Now().Add(-l.opts.Window)
	if limit <= 0 {
		limit = l.opts.MaxPerUser
	}
	records, err := l.store.ListFailures(ctx, userID, since, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.store.CountFailures(ctx, userID, since)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (l *SQLiteLedger) Prune(ctx context.Context) (int64, error) {
	return l.store.DeleteFailuresBefore(ctx, l.opts.Now().Add(-l.opts.Window))
}
