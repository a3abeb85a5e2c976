package store

import (
	"fmt"

	"github.com/hyperengineering/larder/internal/types"
)

// tableSchema maps a backup collection onto its SQL table.
// All collection tables share the same column layout and differ only in
// name and key column.
type tableSchema struct {
	Name      string
	KeyColumn string
}

var collectionTables = map[string]tableSchema{
	types.CollectionInventory:       {Name: "inventory_items", KeyColumn: "item_id"},
	types.CollectionRecipes:         {Name: "saved_recipes", KeyColumn: "item_id"},
	types.CollectionMealPlans:       {Name: "meal_plans", KeyColumn: "item_id"},
	types.CollectionShoppingList:    {Name: "shopping_items", KeyColumn: "item_id"},
	types.CollectionCookware:        {Name: "cookware_items", KeyColumn: "item_id"},
	types.CollectionWasteLog:        {Name: "waste_log_entries", KeyColumn: "entry_id"},
	types.CollectionConsumedLog:     {Name: "consumed_log_entries", KeyColumn: "entry_id"},
	types.CollectionCustomLocations: {Name: "custom_locations", KeyColumn: "location_id"},
}

func tableFor(collection string) (tableSchema, error) {
	t, ok := collectionTables[collection]
	if !ok {
		return tableSchema{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return t, nil
}

func validSection(name string) bool {
	for _, s := range types.Sections {
		if s == name {
			return true
		}
	}
	return false
}
