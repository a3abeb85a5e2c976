package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/larder/internal/ledger"
	"github.com/hyperengineering/larder/internal/plan"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
)

var fixedNow = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *store.SQLiteStore
	ledger   *ledger.MemoryLedger
	importer *Importer
	exporter *Exporter
	status   *StatusReporter
}

func newFixture(t *testing.T, defaults map[string]plan.Limit) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "larder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := ledger.NewMemoryLedger(ledger.Options{Now: func() time.Time { return fixedNow }})
	clock := WithClock(func() time.Time { return fixedNow })
	return &fixture{
		store:    s,
		ledger:   l,
		importer: NewImporter(s, plan.NewResolver(s, defaults), l, clock),
		exporter: NewExporter(s, l, clock),
		status:   NewStatusReporter(s, l),
	}
}

// request builds an import request from the JSON body of "data".
func request(t *testing.T, mode types.Mode, data string) types.ImportRequest {
	t.Helper()
	body := fmt.Sprintf(`{"mode": %q, "backup": {"version": 1, "exportedAt": "2026-01-31T00:00:00Z", "data": %s}}`, mode, data)
	var req types.ImportRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

// requestFromDocument re-submits an exported document.
func requestFromDocument(t *testing.T, mode types.Mode, doc *types.BackupDocument) types.ImportRequest {
	t.Helper()
	encoded, err := json.Marshal(doc)
	require.NoError(t, err)
	req := types.ImportRequest{Mode: mode}
	require.NoError(t, json.Unmarshal(encoded, &req.Backup))
	return req
}

// items renders n inventory records named item-0 .. item-(n-1).
func items(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id": "item-%d", "name": "Item %d", "updatedAt": "2026-01-01T00:00:00Z"}`, i, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func count(t *testing.T, s store.Store, userID, collection string) int64 {
	t.Helper()
	n, err := s.CountRows(context.Background(), userID, collection)
	require.NoError(t, err)
	return n
}

func inventoryQuantity(t *testing.T, s store.Store, userID, id string) float64 {
	t.Helper()
	rows, err := s.ListRows(context.Background(), userID, types.CollectionInventory)
	require.NoError(t, err)
	for _, r := range rows {
		if r.ID != id {
			continue
		}
		var item types.InventoryItem
		require.NoError(t, json.Unmarshal(r.Data, &item))
		require.NotNil(t, item.Quantity)
		return *item.Quantity
	}
	t.Fatalf("inventory item %s not found", id)
	return 0
}
