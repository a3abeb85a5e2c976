package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
)

// toRows encodes typed records as store rows. UpdatedAt carries the client
// timestamp in epoch milliseconds.
func toRows[T any](records []types.Record[T]) ([]store.Row, error) {
	rows := make([]store.Row, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec.Known)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		var extra json.RawMessage
		if len(rec.Extra) > 0 {
			if extra, err = json.Marshal(rec.Extra); err != nil {
				return nil, fmt.Errorf("encode extra fields of %s: %w", rec.ID, err)
			}
		}
		rows = append(rows, store.Row{
			ID:        rec.ID,
			Data:      data,
			Extra:     extra,
			UpdatedAt: rec.UpdatedAt.Millis(),
		})
	}
	return rows, nil
}

// fromRows decodes store rows back into typed records.
func fromRows[T any](rows []store.Row) ([]types.Record[T], error) {
	records := make([]types.Record[T], 0, len(rows))
	for _, row := range rows {
		rec := types.Record[T]{ID: row.ID, UpdatedAt: types.FromMillis(row.UpdatedAt)}
		if err := json.Unmarshal(row.Data, &rec.Known); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", row.ID, err)
		}
		if len(row.Extra) > 0 {
			if err := json.Unmarshal(row.Extra, &rec.Extra); err != nil {
				return nil, fmt.Errorf("decode extra fields of %s: %w", row.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// rowsFor encodes one collection of data.
func rowsFor(data *types.BackupData, collection string) ([]store.Row, error) {
	switch collection {
	case types.CollectionInventory:
		return toRows(data.Inventory)
	case types.CollectionRecipes:
		return toRows(data.Recipes)
	case types.CollectionMealPlans:
		return toRows(data.MealPlans)
	case types.CollectionShoppingList:
		return toRows(data.ShoppingList)
	case types.CollectionCookware:
		return toRows(data.Cookware)
	case types.CollectionWasteLog:
		return toRows(data.WasteLog)
	case types.CollectionConsumedLog:
		return toRows(data.ConsumedLog)
	case types.CollectionCustomLocations:
		return toRows(data.CustomLocations)
	}
	return nil, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
}

// rowsForAll encodes several collections, keyed by name.
func rowsForAll(data *types.BackupData, collections []string) (map[string][]store.Row, error) {
	out := make(map[string][]store.Row, len(collections))
	for _, coll := range collections {
		rows, err := rowsFor(data, coll)
		if err != nil {
			return nil, err
		}
		out[coll] = rows
	}
	return out, nil
}

func readCollection[T any](ctx context.Context, s store.Store, userID, collection string) ([]types.Record[T], error) {
	rows, err := s.ListRows(ctx, userID, collection)
	if err != nil {
		return nil, err
	}
	return fromRows[T](rows)
}
