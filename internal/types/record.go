package types

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Record is the typed envelope around one collection entry.
// ID and UpdatedAt are the sync keys, Known holds the fields the server
// understands, and Extra keeps every other field verbatim so that unknown
// fields survive an export/import round trip.
type Record[T any] struct {
	ID        string
	UpdatedAt Timestamp
	Known     T
	Extra     map[string]json.RawMessage
}

const (
	fieldID        = "id"
	fieldUpdatedAt = "updatedAt"
)

// UnmarshalJSON splits a flat JSON object into the envelope.
func (r *Record[T]) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	*r = Record[T]{}
	if raw, ok := fields[fieldID]; ok {
		if err := json.Unmarshal(raw, &r.ID); err != nil {
			return fmt.Errorf("decode %s: %w", fieldID, err)
		}
	}
	if raw, ok := fields[fieldUpdatedAt]; ok {
		if err := json.Unmarshal(raw, &r.UpdatedAt); err != nil {
			return fmt.Errorf("decode %s: %w", fieldUpdatedAt, err)
		}
	}
	delete(fields, fieldID)
	delete(fields, fieldUpdatedAt)

	// Known is decoded from exact-case keys only; encoding/json would
	// otherwise let "NAME" overwrite "name".
	known := make(map[string]json.RawMessage)
	for name := range knownFieldNames(reflect.TypeFor[T]()) {
		if raw, ok := fields[name]; ok {
			known[name] = raw
			delete(fields, name)
		}
	}
	if len(known) > 0 {
		kb, err := json.Marshal(known)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(kb, &r.Known); err != nil {
			return err
		}
	}

	// Known keys that would not survive re-encoding ("", [], null) stay in
	// Extra verbatim.
	kept, err := encodedKeys(r.Known)
	if err != nil {
		return err
	}
	for name, raw := range known {
		if _, ok := kept[name]; !ok {
			fields[name] = raw
		}
	}
	if len(fields) > 0 {
		r.Extra = fields
	}
	return nil
}

// MarshalJSON flattens the envelope back into one JSON object.
// Known fields take precedence over extra fields of the same name.
func (r Record[T]) MarshalJSON() ([]byte, error) {
	knownFields, err := encodedKeys(r.Known)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(r.Extra)+len(knownFields)+2)
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range knownFields {
		out[k] = v
	}

	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	out[fieldID] = id
	out[fieldUpdatedAt] = ts
	return json.Marshal(out)
}

func encodedKeys(v any) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var knownFieldCache sync.Map // reflect.Type -> map[string]struct{}

// knownFieldNames returns the JSON names of the exported fields of t.
func knownFieldNames(t reflect.Type) map[string]struct{} {
	if cached, ok := knownFieldCache.Load(t); ok {
		return cached.(map[string]struct{})
	}

	names := make(map[string]struct{})
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			names[name] = struct{}{}
		}
	}

	knownFieldCache.Store(t, names)
	return names
}

// InventoryItem is a pantry/fridge/freezer item.
type InventoryItem struct {
	Name            string   `json:"name"`
	Quantity        *float64 `json:"quantity,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	StorageLocation string   `json:"storageLocation,omitempty"`
	Category        string   `json:"category,omitempty"`
	ExpirationDate  string   `json:"expirationDate,omitempty"`
}

// SavedRecipe is a recipe saved by the user.
type SavedRecipe struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Ingredients  []json.RawMessage `json:"ingredients,omitempty"`
	Instructions []json.RawMessage `json:"instructions,omitempty"`
	Servings     *float64          `json:"servings,omitempty"`
	IsFavorite   *bool             `json:"isFavorite,omitempty"`
}

// MealPlan is a planned meal on a given date.
type MealPlan struct {
	Date     string   `json:"date"`
	MealType string   `json:"mealType,omitempty"`
	RecipeID string   `json:"recipeId,omitempty"`
	Servings *float64 `json:"servings,omitempty"`
}

// ShoppingItem is an entry on the shopping list.
type ShoppingItem struct {
	Name      string   `json:"name"`
	Quantity  *float64 `json:"quantity,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Category  string   `json:"category,omitempty"`
	IsChecked *bool    `json:"isChecked,omitempty"`
}

// CookwareItem is a piece of kitchen equipment the user owns.
type CookwareItem struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// WasteLogEntry records food that was thrown away.
type WasteLogEntry struct {
	ItemName string   `json:"itemName"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Date     string   `json:"date,omitempty"`
}

// ConsumedLogEntry records food that was eaten.
type ConsumedLogEntry struct {
	ItemName string   `json:"itemName"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Date     string   `json:"date,omitempty"`
}

// CustomLocation is a user-defined storage location.
type CustomLocation struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}
