package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/larder/internal/archive"
	"github.com/hyperengineering/larder/internal/types"
)

// UserLister enumerates users that have synced at least once.
type UserLister interface {
	ListSyncedUsers(ctx context.Context) ([]string, error)
}

// BackupExporter produces a backup document for one user.
type BackupExporter interface {
	Export(ctx context.Context, userID string) (*types.BackupDocument, error)
}

// ArchiveCoordinator periodically exports every synced user and uploads
// the result to archive storage.
type ArchiveCoordinator struct {
	users    UserLister
	exporter BackupExporter
	archiver archive.Archiver
	interval time.Duration
}

// NewArchiveCoordinator creates a coordinator that archives all synced users
// every interval.
func NewArchiveCoordinator(
	users UserLister,
	exporter BackupExporter,
	archiver archive.Archiver,
	interval time.Duration,
) *ArchiveCoordinator {
	return &ArchiveCoordinator{
		users:    users,
		exporter: exporter,
		archiver: archiver,
		interval: interval,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
func (c *ArchiveCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "archive-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Archive immediately on start
	c.archiveAll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "archive-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.archiveAll(ctx)
		}
	}
}

// archiveAll runs one cycle over every synced user.
func (c *ArchiveCoordinator) archiveAll(ctx context.Context) {
	users, err := c.users.ListSyncedUsers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("failed to list users for archiving",
			"component", "worker",
			"worker", "archive-coordinator",
			"action", "list_users_failed",
			"error", err,
		)
		return
	}

	var succeeded, failed int
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if c.ArchiveUser(ctx, userID) {
			succeeded++
		} else {
			failed++
		}
	}

	if succeeded > 0 || failed > 0 {
		slog.Info("archive cycle completed",
			"component", "worker",
			"worker", "archive-coordinator",
			"action", "cycle_complete",
			"total", len(users),
			"succeeded", succeeded,
			"failed", failed,
		)
	}
}

// ArchiveUser exports and uploads a single user's data.
// Returns true if the archive was stored.
func (c *ArchiveCoordinator) ArchiveUser(ctx context.Context, userID string) bool {
	doc, err := c.exporter.Export(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("export for archive failed",
			"component", "worker",
			"worker", "archive-coordinator",
			"action", "archive_failed",
			"user_id", userID,
			"error", err,
		)
		return false
	}

	key, err := c.archiver.Upload(ctx, userID, doc)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Warn("archive upload failed",
			"component", "worker",
			"worker", "archive-coordinator",
			"action", "archive_failed",
			"user_id", userID,
			"error", err,
		)
		return false
	}

	slog.Debug("archive uploaded",
		"component", "worker",
		"worker", "archive-coordinator",
		"action", "archive_uploaded",
		"user_id", userID,
		"key", key,
	)
	return true
}
