package types

import (
	"encoding/json"
	"time"
)

// Collection names as they appear in the backup document.
const (
	CollectionInventory       = "inventory"
	CollectionRecipes         = "recipes"
	CollectionMealPlans       = "mealPlans"
	CollectionShoppingList    = "shoppingList"
	CollectionCookware        = "cookware"
	CollectionWasteLog        = "wasteLog"
	CollectionConsumedLog     = "consumedLog"
	CollectionCustomLocations = "customLocations"
)

// KV section names.
const (
	SectionPreferences = "preferences"
	SectionAnalytics   = "analytics"
	SectionOnboarding  = "onboarding"
	SectionUserProfile = "userProfile"
)

// CoreCollections are replaced together inside one transaction.
var CoreCollections = []string{
	CollectionInventory,
	CollectionRecipes,
	CollectionMealPlans,
	CollectionShoppingList,
	CollectionCookware,
}

// LogCollections are the append-style collections plus custom locations.
// Replace mode rewrites them outside the core transaction.
var LogCollections = []string{
	CollectionWasteLog,
	CollectionConsumedLog,
	CollectionCustomLocations,
}

// AllCollections lists every record collection in document order.
var AllCollections = append(append([]string{}, CoreCollections...), LogCollections...)

// Sections lists every KV section.
var Sections = []string{
	SectionPreferences,
	SectionAnalytics,
	SectionOnboarding,
	SectionUserProfile,
}

// BackupVersion is the only backup document version accepted on import.
const BackupVersion = 1

// Mode selects how an import reconciles with the stored data.
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

// Valid reports whether m is a known import mode.
func (m Mode) Valid() bool {
	return m == ModeMerge || m == ModeReplace
}

// BackupDocument is the wire format shared by export and import.
type BackupDocument struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Data       BackupData `json:"data"`
}

// BackupData holds every collection and section of one user.
// A nil section marshals as JSON null, meaning "absent".
type BackupData struct {
	Inventory       []Record[InventoryItem]    `json:"inventory"`
	Recipes         []Record[SavedRecipe]      `json:"recipes"`
	MealPlans       []Record[MealPlan]         `json:"mealPlans"`
	ShoppingList    []Record[ShoppingItem]     `json:"shoppingList"`
	Cookware        []Record[CookwareItem]     `json:"cookware"`
	WasteLog        []Record[WasteLogEntry]    `json:"wasteLog"`
	ConsumedLog     []Record[ConsumedLogEntry] `json:"consumedLog"`
	Preferences     json.RawMessage            `json:"preferences"`
	Analytics       json.RawMessage            `json:"analytics"`
	Onboarding      json.RawMessage            `json:"onboarding"`
	CustomLocations []Record[CustomLocation]   `json:"customLocations"`
	UserProfile     json.RawMessage            `json:"userProfile"`
}

// Section returns the raw blob for a KV section, or nil when absent.
func (d *BackupData) Section(name string) json.RawMessage {
	var raw json.RawMessage
	switch name {
	case SectionPreferences:
		raw = d.Preferences
	case SectionAnalytics:
		raw = d.Analytics
	case SectionOnboarding:
		raw = d.Onboarding
	case SectionUserProfile:
		raw = d.UserProfile
	}
	if isJSONNull(raw) {
		return nil
	}
	return raw
}

// SetSection stores the raw blob for a KV section.
func (d *BackupData) SetSection(name string, raw json.RawMessage) {
	switch name {
	case SectionPreferences:
		d.Preferences = raw
	case SectionAnalytics:
		d.Analytics = raw
	case SectionOnboarding:
		d.Onboarding = raw
	case SectionUserProfile:
		d.UserProfile = raw
	}
}

// Len returns the number of records in a collection.
func (d *BackupData) Len(collection string) int {
	switch collection {
	case CollectionInventory:
		return len(d.Inventory)
	case CollectionRecipes:
		return len(d.Recipes)
	case CollectionMealPlans:
		return len(d.MealPlans)
	case CollectionShoppingList:
		return len(d.ShoppingList)
	case CollectionCookware:
		return len(d.Cookware)
	case CollectionWasteLog:
		return len(d.WasteLog)
	case CollectionConsumedLog:
		return len(d.ConsumedLog)
	case CollectionCustomLocations:
		return len(d.CustomLocations)
	}
	return 0
}

// EnsureSlices replaces nil collections with empty slices so they encode as [].
func (d *BackupData) EnsureSlices() {
	if d.Inventory == nil {
		d.Inventory = []Record[InventoryItem]{}
	}
	if d.Recipes == nil {
		d.Recipes = []Record[SavedRecipe]{}
	}
	if d.MealPlans == nil {
		d.MealPlans = []Record[MealPlan]{}
	}
	if d.ShoppingList == nil {
		d.ShoppingList = []Record[ShoppingItem]{}
	}
	if d.Cookware == nil {
		d.Cookware = []Record[CookwareItem]{}
	}
	if d.WasteLog == nil {
		d.WasteLog = []Record[WasteLogEntry]{}
	}
	if d.ConsumedLog == nil {
		d.ConsumedLog = []Record[ConsumedLogEntry]{}
	}
	if d.CustomLocations == nil {
		d.CustomLocations = []Record[CustomLocation]{}
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// RawBackup is the untrusted backup as submitted by a client.
// Data stays undecoded until validation has passed.
type RawBackup struct {
	Version    int                        `json:"version"`
	ExportedAt Timestamp                  `json:"exportedAt"`
	Data       map[string]json.RawMessage `json:"data"`
}

// ImportRequest is the body of POST /sync/import.
type ImportRequest struct {
	Backup RawBackup `json:"backup"`
	Mode   Mode      `json:"mode"`
}

// ImportResponse reports the outcome of a successful import.
type ImportResponse struct {
	Mode       Mode          `json:"mode"`
	ImportedAt time.Time     `json:"importedAt"`
	Summary    ImportSummary `json:"summary"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// ImportSummary holds post-import counts queried from the store, and
// whether each KV section is present.
type ImportSummary struct {
	Inventory       int64 `json:"inventory"`
	Recipes         int64 `json:"recipes"`
	MealPlans       int64 `json:"mealPlans"`
	ShoppingList    int64 `json:"shoppingList"`
	Cookware        int64 `json:"cookware"`
	WasteLog        int64 `json:"wasteLog"`
	ConsumedLog     int64 `json:"consumedLog"`
	CustomLocations int64 `json:"customLocations"`
	Preferences     bool  `json:"preferences"`
	Analytics       bool  `json:"analytics"`
	Onboarding      bool  `json:"onboarding"`
	UserProfile     bool  `json:"userProfile"`
}

// DataTypeCounts are the live counts reported by the sync status.
type DataTypeCounts struct {
	Inventory    int64 `json:"inventory"`
	Recipes      int64 `json:"recipes"`
	MealPlans    int64 `json:"mealPlans"`
	ShoppingList int64 `json:"shoppingList"`
	Cookware     int64 `json:"cookware"`
}

// SyncStatus is the body of GET /sync/status.
type SyncStatus struct {
	LastSyncedAt        *time.Time      `json:"lastSyncedAt"`
	FailedOperations24h int             `json:"failedOperations24h"`
	RecentFailures      []FailureRecord `json:"recentFailures"`
	IsConsistent        bool            `json:"isConsistent"`
	DataTypes           DataTypeCounts  `json:"dataTypes"`
}

// SyncMetadata is the per-user sync bookkeeping row.
type SyncMetadata struct {
	UserID           string               `json:"userId"`
	LastSyncedAt     *time.Time           `json:"lastSyncedAt"`
	SectionUpdatedAt map[string]time.Time `json:"sectionUpdatedAt"`
}

// FailureRecord is one entry in the failure ledger.
type FailureRecord struct {
	ID           string    `json:"id"`
	DataType     string    `json:"dataType"`
	Operation    string    `json:"operation"`
	ErrorMessage string    `json:"errorMessage"`
	Timestamp    time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UserCount int64  `json:"user_count"`
}
