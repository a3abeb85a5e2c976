package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/larder/internal/metrics"
	"github.com/hyperengineering/larder/internal/plan"
	"github.com/hyperengineering/larder/internal/types"
)

// quotaCollections are the plan-limited collections, with the label used in
// truncation warnings.
var quotaCollections = []struct {
	name  string
	label string
}{
	{types.CollectionInventory, "Inventory"},
	{types.CollectionCookware, "Cookware"},
}

// enforceQuota truncates plan-limited collections to their first N records
// and returns one warning per truncation. It never fails: a limit that
// cannot be looked up leaves the collection untouched.
func enforceQuota(ctx context.Context, lookup plan.Lookup, userID string, data *types.BackupData) []string {
	if lookup == nil {
		return nil
	}

	var warnings []string
	for _, qc := range quotaCollections {
		n := data.Len(qc.name)
		if n == 0 {
			continue
		}

		limit, err := lookup.Limit(ctx, userID, qc.name)
		if err != nil {
			slog.Warn("plan limit lookup failed, importing untruncated",
				"component", "reconcile",
				"action", "quota_lookup_failed",
				"user_id", userID,
				"collection", qc.name,
				"error", err,
			)
			continue
		}
		if !limit.Exceeded(n) {
			continue
		}

		truncate(data, qc.name, limit.Max)
		metrics.IncTruncation(qc.name)
		warnings = append(warnings,
			fmt.Sprintf("%s truncated from %d to %d items (plan limit)", qc.label, n, limit.Max))
	}
	return warnings
}

func truncate(data *types.BackupData, collection string, max int) {
	switch collection {
	case types.CollectionInventory:
		data.Inventory = data.Inventory[:max]
	case types.CollectionCookware:
		data.Cookware = data.Cookware[:max]
	}
}
