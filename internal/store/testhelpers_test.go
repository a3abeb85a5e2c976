package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

// newTestStore opens a migrated store in a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "larder.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func itemRow(id, name string, updatedAt int64) Row {
	data, _ := json.Marshal(map[string]any{"name": name})
	return Row{ID: id, Data: data, UpdatedAt: updatedAt}
}

func rowName(t *testing.T, r Row) string {
	t.Helper()
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode row data: %v", err)
	}
	return v.Name
}
