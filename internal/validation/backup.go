package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hyperengineering/larder/internal/types"
)

// Limits bounds what a single import may contain.
type Limits struct {
	// MaxRecords is the per-collection upper bound, checked before any
	// field validation.
	MaxRecords int
	// MaxMessages caps the messages returned with CodeValidationFailed.
	MaxMessages int
}

// DefaultLimits are used when no configuration overrides them.
var DefaultLimits = Limits{MaxRecords: 10000, MaxMessages: 20}

const (
	maxIDLength   = 200
	maxNameLength = 500
	maxTextLength = 10000
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindArray
)

type fieldRule struct {
	name     string
	kind     fieldKind
	required bool
	maxLen   int
	bounds   *numRange
}

type numRange struct{ min, max float64 }

var nonNegative = &numRange{min: 0, max: math.Inf(1)}

// recordContracts lists every typed field of each collection. Fields not
// listed here are accepted as-is and kept in the record's extra bag.
var recordContracts = map[string][]fieldRule{
	types.CollectionInventory: {
		{name: "name", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "quantity", kind: kindNumber, bounds: nonNegative},
		{name: "unit", kind: kindString, maxLen: 50},
		{name: "storageLocation", kind: kindString, maxLen: 100},
		{name: "category", kind: kindString, maxLen: 100},
		{name: "expirationDate", kind: kindString, maxLen: 50},
	},
	types.CollectionRecipes: {
		{name: "title", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "description", kind: kindString, maxLen: maxTextLength},
		{name: "ingredients", kind: kindArray},
		{name: "instructions", kind: kindArray},
		{name: "servings", kind: kindNumber, bounds: nonNegative},
		{name: "isFavorite", kind: kindBool},
	},
	types.CollectionMealPlans: {
		{name: "date", kind: kindString, required: true, maxLen: 50},
		{name: "mealType", kind: kindString, maxLen: 50},
		{name: "recipeId", kind: kindString, maxLen: maxIDLength},
		{name: "servings", kind: kindNumber, bounds: nonNegative},
	},
	types.CollectionShoppingList: {
		{name: "name", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "quantity", kind: kindNumber, bounds: nonNegative},
		{name: "unit", kind: kindString, maxLen: 50},
		{name: "category", kind: kindString, maxLen: 100},
		{name: "isChecked", kind: kindBool},
	},
	types.CollectionCookware: {
		{name: "name", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "category", kind: kindString, maxLen: 100},
	},
	types.CollectionWasteLog: {
		{name: "itemName", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "quantity", kind: kindNumber, bounds: nonNegative},
		{name: "unit", kind: kindString, maxLen: 50},
		{name: "reason", kind: kindString, maxLen: 200},
		{name: "date", kind: kindString, maxLen: 50},
	},
	types.CollectionConsumedLog: {
		{name: "itemName", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "quantity", kind: kindNumber, bounds: nonNegative},
		{name: "unit", kind: kindString, maxLen: 50},
		{name: "date", kind: kindString, maxLen: 50},
	},
	types.CollectionCustomLocations: {
		{name: "name", kind: kindString, required: true, maxLen: maxNameLength},
		{name: "icon", kind: kindString, maxLen: 50},
	},
}

// ValidateImport checks mode and version, then validates the backup.
// It returns the decoded data only when the whole request is valid.
func ValidateImport(req types.ImportRequest, limits Limits) (*types.BackupData, error) {
	if err := ValidateEnum("mode", string(req.Mode), []string{string(types.ModeMerge), string(types.ModeReplace)}); err != nil {
		return nil, &ImportError{Code: CodeInvalidMode, Messages: []string{err.String()}, Total: 1}
	}
	if req.Backup.Version != types.BackupVersion {
		return nil, &ImportError{
			Code:     CodeUnsupportedVersion,
			Messages: []string{fmt.Sprintf("version: must be %d, got %d", types.BackupVersion, req.Backup.Version)},
			Total:    1,
		}
	}
	return ValidateBackup(req.Backup.Data, limits)
}

// ValidateBackup validates every collection and section of a submitted
// backup. Validation is all-or-nothing: on any problem an *ImportError is
// returned and nothing is decoded.
func ValidateBackup(data map[string]json.RawMessage, limits Limits) (*types.BackupData, error) {
	if data == nil {
		return nil, &ImportError{Code: CodeValidationFailed, Messages: []string{"data: is required"}, Total: 1}
	}

	c := &Collector{}
	records := make(map[string][]json.RawMessage, len(types.AllCollections))
	violations := make(map[string]int)

	for _, coll := range types.AllCollections {
		raw, ok := data[coll]
		if !ok || isNull(raw) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			c.Add(&ValidationError{Field: coll, Message: "must be an array"})
			continue
		}
		if limits.MaxRecords > 0 && len(items) > limits.MaxRecords {
			violations[coll] = len(items)
		}
		records[coll] = items
	}

	if len(violations) > 0 {
		return nil, &ImportError{Code: CodeArrayTooLarge, Violations: violations, Total: len(violations)}
	}

	for _, name := range types.Sections {
		raw, ok := data[name]
		if !ok || isNull(raw) {
			continue
		}
		if firstByte(raw) != '{' {
			c.Add(&ValidationError{Field: name, Message: "must be an object or null"})
		}
	}

	for _, coll := range types.AllCollections {
		validateCollection(c, coll, records[coll])
	}

	if c.HasErrors() {
		return nil, &ImportError{
			Code:     CodeValidationFailed,
			Messages: c.Messages(limits.MaxMessages),
			Total:    len(c.Errors()),
		}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("re-encode backup data: %w", err)
	}
	var out types.BackupData
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, &ImportError{Code: CodeValidationFailed, Messages: []string{"data: " + err.Error()}, Total: 1}
	}
	return &out, nil
}

func validateCollection(c *Collector, coll string, items []json.RawMessage) {
	rules := recordContracts[coll]
	seen := make(map[string]int, len(items))

	for i, raw := range items {
		prefix := fmt.Sprintf("%s[%d]", coll, i)

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			c.Add(&ValidationError{Field: prefix, Message: "must be an object"})
			continue
		}

		if id, ok := validateID(c, prefix+".id", fields["id"]); ok {
			if first, dup := seen[id]; dup {
				c.Add(&ValidationError{
					Field:   prefix + ".id",
					Message: fmt.Sprintf("duplicate id %q (first at index %d)", id, first),
				})
			} else {
				seen[id] = i
			}
		}

		if raw, ok := fields["updatedAt"]; ok && !isNull(raw) {
			if b := firstByte(raw); b == '{' || b == '[' || b == 't' || b == 'f' {
				c.Add(&ValidationError{Field: prefix + ".updatedAt", Message: "must be a string, number or null"})
			}
		}

		for _, rule := range rules {
			raw, present := fields[rule.name]
			validateField(c, prefix+"."+rule.name, rule, raw, present)
		}
	}
}

func validateID(c *Collector, field string, raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		c.Add(ValidateRequired(field, ""))
		return "", false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		c.Add(&ValidationError{Field: field, Message: "must be a string"})
		return "", false
	}

	before := len(c.Errors())
	c.Add(ValidateRequired(field, id))
	c.Add(ValidateMaxLength(field, id, maxIDLength))
	c.Add(ValidateNoNullBytes(field, id))
	c.Add(ValidateUTF8(field, string(raw)))
	return id, len(c.Errors()) == before
}

func validateField(c *Collector, field string, rule fieldRule, raw json.RawMessage, present bool) {
	if !present || isNull(raw) {
		if rule.required {
			c.Add(ValidateRequired(field, ""))
		}
		return
	}

	switch rule.kind {
	case kindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			c.Add(&ValidationError{Field: field, Message: "must be a string"})
			return
		}
		if rule.required {
			c.Add(ValidateRequired(field, s))
		}
		if rule.maxLen > 0 {
			c.Add(ValidateMaxLength(field, s, rule.maxLen))
		}
		c.Add(ValidateNoNullBytes(field, s))
		c.Add(ValidateUTF8(field, string(raw)))
	case kindNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			c.Add(&ValidationError{Field: field, Message: "must be a number"})
			return
		}
		if rule.bounds != nil {
			c.Add(ValidateRange(field, f, rule.bounds.min, rule.bounds.max))
		}
	case kindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			c.Add(&ValidationError{Field: field, Message: "must be a boolean"})
		}
	case kindArray:
		var a []json.RawMessage
		if err := json.Unmarshal(raw, &a); err != nil {
			c.Add(&ValidationError{Field: field, Message: "must be an array"})
		}
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
