package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/larder/internal/ledger"
	"github.com/hyperengineering/larder/internal/metrics"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
)

// Exporter produces a self-describing backup of one user.
type Exporter struct {
	store  store.Store
	ledger ledger.Ledger
	now    func() time.Time
}

// NewExporter creates an Exporter. l may be nil.
func NewExporter(s store.Store, l ledger.Ledger, opts ...Option) *Exporter {
	o := buildOptions(opts)
	return &Exporter{store: s, ledger: l, now: o.now}
}

// Export reads every collection and section of userID. Collections are read
// concurrently; absent sections export as null.
func (e *Exporter) Export(ctx context.Context, userID string) (*types.BackupDocument, error) {
	start := time.Now()
	doc, err := e.export(ctx, userID)
	if err != nil {
		metrics.ObserveExport(metrics.StatusFailed)
		slog.Error("export failed",
			"component", "reconcile",
			"action", "export_failed",
			"user_id", userID,
			"error", err,
		)
		recordFailure(ctx, e.ledger, userID, dataTypeBackup, "export", err)
		return nil, err
	}

	metrics.ObserveExport(metrics.StatusSuccess)
	slog.Info("export completed",
		"component", "reconcile",
		"action", "export_completed",
		"user_id", userID,
		"inventory", len(doc.Data.Inventory),
		"recipes", len(doc.Data.Recipes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

func (e *Exporter) export(ctx context.Context, userID string) (*types.BackupDocument, error) {
	var data types.BackupData
	g, gctx := errgroup.WithContext(ctx)

	// Each reader assigns a distinct field of data.
	g.Go(func() (err error) {
		data.Inventory, err = readCollection[types.InventoryItem](gctx, e.store, userID, types.CollectionInventory)
		return err
	})
	g.Go(func() (err error) {
		data.Recipes, err = readCollection[types.SavedRecipe](gctx, e.store, userID, types.CollectionRecipes)
		return err
	})
	g.Go(func() (err error) {
		data.MealPlans, err = readCollection[types.MealPlan](gctx, e.store, userID, types.CollectionMealPlans)
		return err
	})
	g.Go(func() (err error) {
		data.ShoppingList, err = readCollection[types.ShoppingItem](gctx, e.store, userID, types.CollectionShoppingList)
		return err
	})
	g.Go(func() (err error) {
		data.Cookware, err = readCollection[types.CookwareItem](gctx, e.store, userID, types.CollectionCookware)
		return err
	})
	g.Go(func() (err error) {
		data.WasteLog, err = readCollection[types.WasteLogEntry](gctx, e.store, userID, types.CollectionWasteLog)
		return err
	})
	g.Go(func() (err error) {
		data.ConsumedLog, err = readCollection[types.ConsumedLogEntry](gctx, e.store, userID, types.CollectionConsumedLog)
		return err
	})
	g.Go(func() (err error) {
		data.CustomLocations, err = readCollection[types.CustomLocation](gctx, e.store, userID, types.CollectionCustomLocations)
		return err
	})

	var sections map[string]json.RawMessage
	g.Go(func() (err error) {
		sections, err = e.store.ListSections(gctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export user %s: %w", userID, err)
	}

	for _, name := range types.Sections {
		if raw, ok := sections[name]; ok {
			data.SetSection(name, raw)
		}
	}
	data.EnsureSlices()

	return &types.BackupDocument{
		Version:    types.BackupVersion,
		ExportedAt: e.now().UTC(),
		Data:       data,
	}, nil
}
