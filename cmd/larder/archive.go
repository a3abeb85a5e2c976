package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/larder/internal/archive"
	"github.com/hyperengineering/larder/internal/config"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload a one-off backup archive for a user",
	Long: "Export a user's data from the local database and upload it to the configured " +
		"archive bucket. Prints the object key and a pre-signed download URL.",
	Args: cobra.NoArgs,
	RunE: runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	if err := requireUser(syncUser); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled() {
		return fmt.Errorf("archive: %w (set LARDER_ARCHIVE_BUCKET)", archive.ErrNotConfigured)
	}

	svc, err := newServices(cfg)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	return archiveUser(cmd, svc, syncUser)
}

func archiveUser(cmd *cobra.Command, svc *services, userID string) error {
	ctx := cmd.Context()

	doc, err := svc.exporter.Export(ctx, userID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	key, err := svc.archiver.Upload(ctx, userID, doc)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	url, expiry, err := svc.archiver.PresignedURL(ctx, key)
	if err != nil && !errors.Is(err, archive.ErrNotConfigured) {
		return fmt.Errorf("presign: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"key":        key,
			"url":        url,
			"expires_at": expiry,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Archived %s to %s\n", userID, key)
	if url != "" {
		fmt.Fprintf(out, "Download (expires %s):\n%s\n", expiry.Format(time.RFC3339), url)
	}
	return nil
}
