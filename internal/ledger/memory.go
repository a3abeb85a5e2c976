package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperengineering/larder/internal/types"
)

// MemoryLedger is the in-process ledger. Entries are lost on restart and
// not shared between instances.
type MemoryLedger struct {
	mu      sync.Mutex
	opts    Options
	entries map[string][]types.FailureRecord // oldest first
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger(opts Options) *MemoryLedger {
	return &MemoryLedger{
		opts:    opts.withDefaults(),
		entries: make(map[string][]types.FailureRecord),
	}
}

func (l *MemoryLedger) Record(_ context.Context, userID string, rec types.FailureRecord) error {
	rec = stamp(rec, l.opts.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	list := append(l.entries[userID], rec)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
	if over := len(list) - l.opts.MaxPerUser; over > 0 {
		list = append([]types.FailureRecord(nil), list[over:]...)
	}
	l.entries[userID] = list
	return nil
}

func (l *MemoryLedger) Recent(_ context.Context, userID string, limit int) ([]types.FailureRecord, int, error) {
	cutoff := l.opts.Now().Add(-l.opts.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.entries[userID]
	recent := make([]types.FailureRecord, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Timestamp.Before(cutoff) {
			break
		}
		recent = append(recent, list[i])
	}
	total := len(recent)
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, total, nil
}

func (l *MemoryLedger) Prune(_ context.Context) (int64, error) {
	cutoff := l.opts.Now().Add(-l.opts.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for userID, list := range l.entries {
		keep := sort.Search(len(list), func(i int) bool {
			return !list[i].Timestamp.Before(cutoff)
		})
		removed += int64(keep)
		if keep == len(list) {
			delete(l.entries, userID)
			continue
		}
		if keep > 0 {
			l.entries[userID] = append([]types.FailureRecord(nil), list[keep:]...)
		}
	}
	return removed, nil
}
