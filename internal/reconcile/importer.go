// Package reconcile implements import, export and sync status for one
// user's backup.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/larder/internal/jsonmerge"
	"github.com/hyperengineering/larder/internal/ledger"
	"github.com/hyperengineering/larder/internal/metrics"
	"github.com/hyperengineering/larder/internal/plan"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
	"github.com/hyperengineering/larder/internal/validation"
)

// Import states, logged at debug level as the import progresses.
const (
	stateReceived         = "received"
	stateValidated        = "validated"
	stateSizeChecked      = "size_checked"
	stateQuotaEnforced    = "quota_enforced"
	stateReplaced         = "written_replace"
	stateMerged           = "written_merge"
	stateMetadataUpdated  = "metadata_updated"
	stateRecounted        = "recounted"
	stateResponded        = "responded"
	stateValidationFailed = "validation_failed"
	stateWriteFailed      = "write_failed"
)

// Ledger data types for failures that are not tied to one collection.
const (
	dataTypeBackup = "backup"
)

// Importer reconciles a submitted backup with the stored data.
type Importer struct {
	store  store.Store
	plans  plan.Lookup
	ledger ledger.Ledger
	limits validation.Limits
	now    func() time.Time
}

// Option configures an Importer or Exporter.
type Option func(*options)

type options struct {
	limits validation.Limits
	now    func() time.Time
}

// WithLimits overrides the default validation limits.
func WithLimits(l validation.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithClock overrides the clock used for import and export timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{limits: validation.DefaultLimits, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewImporter creates an Importer. plans and l may be nil, in which case no
// quota is enforced and failures are not recorded.
func NewImporter(s store.Store, plans plan.Lookup, l ledger.Ledger, opts ...Option) *Importer {
	o := buildOptions(opts)
	return &Importer{
		store:  s,
		plans:  plans,
		ledger: l,
		limits: o.limits,
		now:    o.now,
	}
}

// Import validates req and applies it for userID. Validation problems are
// returned as *validation.ImportError before anything is written; storage
// problems as *WriteError.
func (im *Importer) Import(ctx context.Context, userID string, req types.ImportRequest) (*types.ImportResponse, error) {
	start := time.Now()
	mode := modeLabel(req.Mode)
	log := slog.With("component", "reconcile", "user_id", userID, "mode", mode)
	log.Debug("import state", "state", stateReceived)

	data, err := validation.ValidateImport(req, im.limits)
	if err != nil {
		log.Debug("import state", "state", stateValidationFailed)
		log.Info("import rejected",
			"action", "import_rejected",
			"error", err,
		)
		im.recordFailure(ctx, userID, dataTypeBackup, "import:validate", err)
		metrics.ObserveImport(mode, metrics.StatusRejected, time.Since(start))
		return nil, err
	}
	log.Debug("import state", "state", stateValidated)
	log.Debug("import state", "state", stateSizeChecked)

	warnings := enforceQuota(ctx, im.plans, userID, data)
	log.Debug("import state", "state", stateQuotaEnforced, "warnings", len(warnings))

	now := im.now().UTC()
	writtenState := stateMerged
	if req.Mode == types.ModeReplace {
		writtenState = stateReplaced
		err = im.replace(ctx, userID, data, now)
	} else {
		err = im.merge(ctx, userID, data, now, log)
	}
	if err == nil {
		log.Debug("import state", "state", writtenState)
		touched := presentSections(data)
		if mErr := im.store.RecordSync(ctx, userID, now, touched); mErr != nil {
			err = &WriteError{Scope: ScopeMetadata, Partial: true, Err: mErr}
		} else {
			log.Debug("import state", "state", stateMetadataUpdated)
		}
	}
	if err != nil {
		return nil, im.writeFailed(ctx, log, userID, req.Mode, start, err)
	}

	summary, err := im.summarize(ctx, userID)
	if err != nil {
		metrics.ObserveImport(mode, metrics.StatusFailed, time.Since(start))
		return nil, fmt.Errorf("recount after import: %w", err)
	}
	log.Debug("import state", "state", stateRecounted)

	metrics.ObserveImport(mode, metrics.StatusSuccess, time.Since(start))
	log.Info("import completed",
		"action", "import_completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"warnings", len(warnings),
	)
	log.Debug("import state", "state", stateResponded)

	return &types.ImportResponse{
		Mode:       req.Mode,
		ImportedAt: now,
		Summary:    *summary,
		Warnings:   warnings,
	}, nil
}

func (im *Importer) writeFailed(ctx context.Context, log *slog.Logger, userID string, mode types.Mode, start time.Time, err error) error {
	var we *WriteError
	if !errors.As(err, &we) {
		we = &WriteError{Scope: ScopeCore, Err: err}
	}
	log.Debug("import state", "state", stateWriteFailed)
	log.Error("import write failed",
		"action", "import_failed",
		"scope", we.Scope,
		"partial", we.Partial,
		"error", we.Err,
	)
	im.recordFailure(ctx, userID, we.Scope, "import:"+string(mode), we)
	metrics.ObserveImport(string(mode), metrics.StatusFailed, time.Since(start))
	return we
}

// replace rewrites the core collections in one transaction, then the log
// collections in a second one, then overwrites the submitted sections.
func (im *Importer) replace(ctx context.Context, userID string, data *types.BackupData, now time.Time) error {
	core, err := rowsForAll(data, types.CoreCollections)
	if err != nil {
		return &WriteError{Scope: ScopeCore, Err: err}
	}
	if err := im.store.ReplaceCollections(ctx, userID, core, now); err != nil {
		return &WriteError{Scope: ScopeCore, Err: err}
	}

	logs, err := rowsForAll(data, types.LogCollections)
	if err != nil {
		return &WriteError{Scope: ScopeLogs, Partial: true, Err: err}
	}
	if err := im.store.ReplaceCollections(ctx, userID, logs, now); err != nil {
		return &WriteError{Scope: ScopeLogs, Partial: true, Err: err}
	}

	for _, name := range types.Sections {
		value := data.Section(name)
		if value == nil {
			continue
		}
		if err := im.store.PutSection(ctx, userID, name, value, now); err != nil {
			return &WriteError{Scope: name, Partial: true, Err: err}
		}
	}
	return nil
}

// merge upserts every record under last-write-wins and merges the
// submitted sections into the stored ones. Applied upserts are kept when a
// later one fails.
func (im *Importer) merge(ctx context.Context, userID string, data *types.BackupData, now time.Time, log *slog.Logger) error {
	applied := false
	var written, skipped int

	for _, coll := range types.AllCollections {
		rows, err := rowsFor(data, coll)
		if err != nil {
			return &WriteError{Scope: coll, Partial: applied, Err: err}
		}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return &WriteError{Scope: coll, Partial: applied, Err: err}
			}
			ok, err := im.store.UpsertIfNewer(ctx, userID, coll, row)
			if err != nil {
				return &WriteError{Scope: coll, Partial: applied, Err: err}
			}
			if ok {
				applied = true
				written++
			} else {
				skipped++
			}
		}
	}
	log.Debug("merge upserts applied", "written", written, "skipped", skipped)

	for _, name := range types.Sections {
		incoming := data.Section(name)
		if incoming == nil {
			continue
		}
		if err := im.mergeSection(ctx, userID, name, incoming, now); err != nil {
			return &WriteError{Scope: name, Partial: applied, Err: err}
		}
		applied = true
	}
	return nil
}

// mergeSection reads, merges and writes one section. The read and the write
// are separate statements; a concurrent import of the same section can lose
// an update.
func (im *Importer) mergeSection(ctx context.Context, userID, name string, incoming json.RawMessage, now time.Time) error {
	stored, err := im.store.GetSection(ctx, userID, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	merged, err := jsonmerge.MergeJSON(stored, incoming)
	if err != nil {
		return err
	}
	return im.store.PutSection(ctx, userID, name, merged, now)
}

// summarize recounts every collection and lists the stored sections.
func (im *Importer) summarize(ctx context.Context, userID string) (*types.ImportSummary, error) {
	counts := make(map[string]int64, len(types.AllCollections))
	for _, coll := range types.AllCollections {
		n, err := im.store.CountRows(ctx, userID, coll)
		if err != nil {
			return nil, err
		}
		counts[coll] = n
	}
	sections, err := im.store.ListSections(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, hasPrefs := sections[types.SectionPreferences]
	_, hasAnalytics := sections[types.SectionAnalytics]
	_, hasOnboarding := sections[types.SectionOnboarding]
	_, hasProfile := sections[types.SectionUserProfile]

	return &types.ImportSummary{
		Inventory:       counts[types.CollectionInventory],
		Recipes:         counts[types.CollectionRecipes],
		MealPlans:       counts[types.CollectionMealPlans],
		ShoppingList:    counts[types.CollectionShoppingList],
		Cookware:        counts[types.CollectionCookware],
		WasteLog:        counts[types.CollectionWasteLog],
		ConsumedLog:     counts[types.CollectionConsumedLog],
		CustomLocations: counts[types.CollectionCustomLocations],
		Preferences:     hasPrefs,
		Analytics:       hasAnalytics,
		Onboarding:      hasOnboarding,
		UserProfile:     hasProfile,
	}, nil
}

func (im *Importer) recordFailure(ctx context.Context, userID, dataType, operation string, err error) {
	recordFailure(ctx, im.ledger, userID, dataType, operation, err)
}

// recordFailure writes to the ledger even when ctx has been cancelled.
func recordFailure(ctx context.Context, l ledger.Ledger, userID, dataType, operation string, err error) {
	metrics.IncSyncFailure(dataType)
	if l == nil {
		return
	}
	rec := ledger.NewFailure(dataType, operation, err)
	if lErr := l.Record(context.WithoutCancel(ctx), userID, rec); lErr != nil {
		slog.Warn("failed to record sync failure",
			"component", "reconcile",
			"action", "ledger_write_failed",
			"user_id", userID,
			"error", lErr,
		)
	}
}

func presentSections(data *types.BackupData) []string {
	var names []string
	for _, name := range types.Sections {
		if data.Section(name) != nil {
			names = append(names, name)
		}
	}
	return names
}

// modeLabel bounds the metric label to the known modes.
func modeLabel(m types.Mode) string {
	if m.Valid() {
		return string(m)
	}
	return "invalid"
}
