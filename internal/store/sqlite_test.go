package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/larder/internal/types"
)

func TestNewSQLiteStore_EmptyStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.UserCount)
	assert.Equal(t, int64(2), stats.SchemaVersion)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.UpsertIfNewer(ctx, "u1", types.CollectionInventory, itemRow("a", "Apple", 1))
	require.NoError(t, err)

	n, err := s.CountRows(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertIfNewer_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name      string
		row       Row
		wantWrite bool
		wantName  string
	}{
		{"insert new row", itemRow("apple-1", "Apple", 2000), true, "Apple"},
		{"newer overwrites", itemRow("apple-1", "Green Apple", 3000), true, "Green Apple"},
		{"older is ignored", itemRow("apple-1", "Old Apple", 1000), false, "Green Apple"},
		{"tie keeps stored", itemRow("apple-1", "Tie Apple", 3000), false, "Green Apple"},
	}

	// Cases run in order against the same row.
	for _, tt := range tests {
		written, err := s.UpsertIfNewer(ctx, "u1", types.CollectionInventory, tt.row)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantWrite, written, tt.name)

		rows, err := s.ListRows(ctx, "u1", types.CollectionInventory)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, tt.wantName, rowName(t, rows[0]), tt.name)
	}
}

func TestUpsertIfNewer_NullStoredTimestampLoses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionRecipes, itemRow("r1", "Soup", 5000))
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE saved_recipes SET updated_at = NULL WHERE item_id = 'r1'`)
	require.NoError(t, err)

	written, err := s.UpsertIfNewer(ctx, "u1", types.CollectionRecipes, itemRow("r1", "Stew", 1))
	require.NoError(t, err)
	assert.True(t, written)

	rows, err := s.ListRows(ctx, "u1", types.CollectionRecipes)
	require.NoError(t, err)
	assert.Equal(t, "Stew", rowName(t, rows[0]))
	assert.Equal(t, int64(1), rows[0].UpdatedAt)
}

func TestUpsertIfNewer_ZeroTimestampNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionWasteLog, itemRow("w1", "first", 0))
	require.NoError(t, err)

	written, err := s.UpsertIfNewer(ctx, "u1", types.CollectionWasteLog, itemRow("w1", "second", 0))
	require.NoError(t, err)
	assert.False(t, written)
}

func TestUpsertIfNewer_PreservesExtra(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	row := itemRow("c1", "Pan", 10)
	row.Extra = json.RawMessage(`{"material":"iron"}`)
	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionCookware, row)
	require.NoError(t, err)

	rows, err := s.ListRows(ctx, "u1", types.CollectionCookware)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"material":"iron"}`, string(rows[0].Extra))
}

func TestUpsertIfNewer_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionInventory, itemRow("a", "Apple", 1))
	require.NoError(t, err)
	written, err := s.UpsertIfNewer(ctx, "u2", types.CollectionInventory, itemRow("a", "Apricot", 1))
	require.NoError(t, err)
	assert.True(t, written)

	n, err := s.CountRows(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertIfNewer_UnknownCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(context.Background(), "u1", "pantry", itemRow("a", "A", 1))
	assert.True(t, errors.Is(err, ErrUnknownCollection))
}

func TestUpsertIfNewer_ConcurrentWritersKeepNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionInventory,
				itemRow("apple-1", fmt.Sprintf("v%d", ts), ts))
			if err != nil {
				errs <- err
			}
		}(int64(i * 1000))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := s.ListRows(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "v20000", rowName(t, rows[0]))
	assert.Equal(t, int64(20000), rows[0].UpdatedAt)
}

func TestReplaceCollections_ReplacesAndStamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionInventory, itemRow(id, id, 1))
		require.NoError(t, err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := s.ReplaceCollections(ctx, "u1", map[string][]Row{
		types.CollectionInventory: {itemRow("x", "X", 99)},
		types.CollectionRecipes:   {},
	}, now)
	require.NoError(t, err)

	rows, err := s.ListRows(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0].ID)
	assert.Equal(t, now.UnixMilli(), rows[0].UpdatedAt)
}

func TestReplaceCollections_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionInventory, itemRow("keep", "Keep", 1))
	require.NoError(t, err)
	_, err = s.UpsertIfNewer(ctx, "u1", types.CollectionRecipes, itemRow("r-keep", "Keep", 1))
	require.NoError(t, err)

	// Duplicate keys violate the primary key partway through the call.
	err = s.ReplaceCollections(ctx, "u1", map[string][]Row{
		types.CollectionInventory: {itemRow("new", "New", 1)},
		types.CollectionRecipes:   {itemRow("dup", "A", 1), itemRow("dup", "B", 1)},
	}, time.Now())
	require.Error(t, err)

	inv, err := s.ListRows(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, "keep", inv[0].ID)

	rec, err := s.ListRows(ctx, "u1", types.CollectionRecipes)
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Equal(t, "r-keep", rec[0].ID)
}

func TestReplaceCollections_UnknownCollectionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionCookware, itemRow("pan", "Pan", 1))
	require.NoError(t, err)

	err = s.ReplaceCollections(ctx, "u1", map[string][]Row{
		types.CollectionCookware: {},
		"pantry":                 {itemRow("x", "X", 1)},
	}, time.Now())
	require.ErrorIs(t, err, ErrUnknownCollection)

	n, err := s.CountRows(ctx, "u1", types.CollectionCookware)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListRows_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		_, err := s.UpsertIfNewer(ctx, "u1", types.CollectionShoppingList, itemRow(id, id, 1))
		require.NoError(t, err)
	}

	rows, err := s.ListRows(ctx, "u1", types.CollectionShoppingList)
	require.NoError(t, err)
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.ID
	}
	assert.Equal(t, ids, got)
}

func TestListRows_EmptyIsNonNil(t *testing.T) {
	s := newTestStore(t)

	rows, err := s.ListRows(context.Background(), "nobody", types.CollectionMealPlans)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSections_PutGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetSection(ctx, "u1", types.SectionPreferences)
	require.ErrorIs(t, err, ErrNotFound)

	now := time.Now()
	require.NoError(t, s.PutSection(ctx, "u1", types.SectionPreferences, json.RawMessage(`{"theme":"dark"}`), now))
	require.NoError(t, s.PutSection(ctx, "u1", types.SectionPreferences, json.RawMessage(`{"theme":"light"}`), now))
	require.NoError(t, s.PutSection(ctx, "u1", types.SectionOnboarding, json.RawMessage(`{"done":true}`), now))

	got, err := s.GetSection(ctx, "u1", types.SectionPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"light"}`, string(got))

	all, err := s.ListSections(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, types.SectionOnboarding)
}

func TestSections_UnknownSection(t *testing.T) {
	s := newTestStore(t)

	err := s.PutSection(context.Background(), "u1", "settings", json.RawMessage(`{}`), time.Now())
	assert.ErrorIs(t, err, ErrUnknownSection)

	_, err = s.GetSection(context.Background(), "u1", "settings")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestSyncMetadata_RecordSyncMergesSections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetSyncMetadata(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, s.RecordSync(ctx, "u1", first, []string{types.SectionPreferences, types.SectionAnalytics}))
	require.NoError(t, s.RecordSync(ctx, "u1", second, []string{types.SectionAnalytics}))

	meta, err := s.GetSyncMetadata(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, meta.LastSyncedAt)
	assert.True(t, meta.LastSyncedAt.Equal(second))
	assert.True(t, meta.SectionUpdatedAt[types.SectionPreferences].Equal(first))
	assert.True(t, meta.SectionUpdatedAt[types.SectionAnalytics].Equal(second))

	users, err := s.ListSyncedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.UserCount)
}

func TestPlanLimits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetPlanLimit(ctx, "u1", types.CollectionInventory)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPlanLimit(ctx, "u1", types.CollectionInventory, 250))
	require.NoError(t, s.SetPlanLimit(ctx, "u1", types.CollectionRecipes, -1))

	limit, err := s.GetPlanLimit(ctx, "u1", types.CollectionInventory)
	require.NoError(t, err)
	assert.Equal(t, int64(250), limit)

	limit, err = s.GetPlanLimit(ctx, "u1", types.CollectionRecipes)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), limit)

	assert.ErrorIs(t, s.SetPlanLimit(ctx, "u1", "pantry", 1), ErrUnknownCollection)
}

func TestFailures_AppendListTrim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendFailure(ctx, "u1", types.FailureRecord{
			ID:           fmt.Sprintf("f%d", i),
			DataType:     types.CollectionInventory,
			Operation:    "import",
			ErrorMessage: "boom",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := s.ListFailures(ctx, "u1", base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "f4", recent[0].ID)
	assert.Equal(t, "f2", recent[2].ID)

	count, err := s.CountFailures(ctx, "u1", base)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.NoError(t, s.TrimFailures(ctx, "u1", 2))
	count, err = s.CountFailures(ctx, "u1", base)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	removed, err := s.DeleteFailuresBefore(ctx, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
