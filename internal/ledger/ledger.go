// Package ledger keeps a bounded, per-user rolling record of recent sync
// failures.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/larder/internal/types"
)

const (
	DefaultMaxPerUser = 50
	DefaultWindow     = 24 * time.Hour
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Ledger records failures and reports the ones inside the rolling window.
type Ledger interface {
	// Record appends a failure for the user. Missing ID and Timestamp are
	// filled in.
	Record(ctx context.Context, userID string, rec types.FailureRecord) error

	// Recent returns up to limit failures inside the window, newest first,
	// together with the total number inside the window.
	Recent(ctx context.Context, userID string, limit int) ([]types.FailureRecord, int, error)

	// Prune drops every failure older than the window.
	Prune(ctx context.Context) (int64, error)
}

// Options configures either ledger implementation.
type Options struct {
	MaxPerUser int
	Window     time.Duration
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxPerUser <= 0 {
		o.MaxPerUser = DefaultMaxPerUser
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// New creates the ledger selected by backend. fs is required for the
// sqlite backend and ignored otherwise.
func New(backend string, fs FailureStore, opts Options) (Ledger, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryLedger(opts), nil
	case BackendSQLite:
		if fs == nil {
			return nil, fmt.Errorf("ledger: sqlite backend requires a failure store")
		}
		return NewSQLiteLedger(fs, opts), nil
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", backend)
	}
}

// NewFailure builds a failure record for err.
func NewFailure(dataType, operation string, err error) types.FailureRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return types.FailureRecord{
		DataType:     dataType,
		Operation:    operation,
		ErrorMessage: msg,
	}
}

func stamp(rec types.FailureRecord, now time.Time) types.FailureRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now.UTC()
	}
	if rec.ID == "" {
		rec.ID = ulid.MustNew(ulid.Timestamp(rec.Timestamp), ulid.DefaultEntropy()).String()
	}
	return rec
}
