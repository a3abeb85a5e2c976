package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/larder/internal/ledger"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
)

// recentFailureLimit is how many ledger entries a status response carries.
const recentFailureLimit = 10

// StatusReporter reports last-sync time, live counts and recent failures.
type StatusReporter struct {
	store  store.Store
	ledger ledger.Ledger
}

// NewStatusReporter creates a StatusReporter. l may be nil.
func NewStatusReporter(s store.Store, l ledger.Ledger) *StatusReporter {
	return &StatusReporter{store: s, ledger: l}
}

// Status returns the sync status of userID. Counts are always read fresh.
func (r *StatusReporter) Status(ctx context.Context, userID string) (*types.SyncStatus, error) {
	status := &types.SyncStatus{RecentFailures: []types.FailureRecord{}}

	meta, err := r.store.GetSyncMetadata(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		status.LastSyncedAt = meta.LastSyncedAt
		status.IsConsistent = meta.LastSyncedAt != nil
	}

	counts := []struct {
		collection string
		dst        *int64
	}{
		{types.CollectionInventory, &status.DataTypes.Inventory},
		{types.CollectionRecipes, &status.DataTypes.Recipes},
		{types.CollectionMealPlans, &status.DataTypes.MealPlans},
		{types.CollectionShoppingList, &status.DataTypes.ShoppingList},
		{types.CollectionCookware, &status.DataTypes.Cookware},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			n, err := r.store.CountRows(gctx, userID, c.collection)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.ledger != nil {
		recent, total, err := r.ledger.Recent(ctx, userID, recentFailureLimit)
		if err != nil {
			slog.Warn("failed to read failure ledger",
				"component", "reconcile",
				"action", "ledger_read_failed",
				"user_id", userID,
				"error", err,
			)
		} else {
			status.RecentFailures = recent
			status.FailedOperations24h = total
		}
	}

	return status, nil
}
