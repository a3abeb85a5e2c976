package worker

import (
	"context"
	"log/slog"
	"time"
)

// Pruner removes expired failure records.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// LedgerPruner periodically drops failure records older than the ledger window.
type LedgerPruner struct {
	ledger   Pruner
	interval time.Duration
}

// NewLedgerPruner creates a pruner for the given ledger.
func NewLedgerPruner(ledger Pruner, interval time.Duration) *LedgerPruner {
	return &LedgerPruner{
		ledger:   ledger,
		interval: interval,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start.
func (w *LedgerPruner) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "ledger-pruner",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "ledger-pruner",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *LedgerPruner) prune(ctx context.Context) {
	start := time.Now()

	removed, err := w.ledger.Prune(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("ledger prune failed",
			"component", "worker",
			"worker", "ledger-pruner",
			"action", "prune_failed",
			"error", err,
		)
		return
	}

	if removed > 0 {
		slog.Info("ledger pruned",
			"component", "worker",
			"worker", "ledger-pruner",
			"action", "prune_complete",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
