package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/larder/pkg/client"
)

var (
	syncUser   string
	exportOut  string
	importMode string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download a user's backup document",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a backup document for a user (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's sync status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd, statusCmd, planSetCmd, archiveCmd} {
		c.Flags().StringVar(&syncUser, "user", "", "User ID")
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write the backup to this file instead of stdout")
	importCmd.Flags().StringVar(&importMode, "mode", string(client.ModeMerge), "Import mode: merge or replace")
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := requireUser(syncUser); err != nil {
		return err
	}
	c, err := newRemoteClient()
	if err != nil {
		return err
	}

	doc, err := c.Export(cmd.Context(), syncUser)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if exportOut == "" {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return err
	}
	if err := printJSON(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Backup for %s written to %s\n", syncUser, exportOut)
	return nil
}

func readBackup(cmd *cobra.Command, path string) (client.RawBackup, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return client.RawBackup{}, err
		}
		defer f.Close()
		r = f
	}

	var backup client.RawBackup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return client.RawBackup{}, fmt.Errorf("read backup %s: %w", path, err)
	}
	return backup, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := requireUser(syncUser); err != nil {
		return err
	}
	backup, err := readBackup(cmd, args[0])
	if err != nil {
		return err
	}
	c, err := newRemoteClient()
	if err != nil {
		return err
	}

	resp, err := c.Import(cmd.Context(), syncUser, client.ImportRequest{
		Backup: backup,
		Mode:   client.Mode(importMode),
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported (%s) at %s\n", resp.Mode, resp.ImportedAt.Format(time.RFC3339))
	s := resp.Summary
	w := newTabWriter(out)
	fmt.Fprintln(w, "COLLECTION\tRECORDS")
	fmt.Fprintf(w, "inventory\t%d\n", s.Inventory)
	fmt.Fprintf(w, "recipes\t%d\n", s.Recipes)
	fmt.Fprintf(w, "mealPlans\t%d\n", s.MealPlans)
	fmt.Fprintf(w, "shoppingList\t%d\n", s.ShoppingList)
	fmt.Fprintf(w, "cookware\t%d\n", s.Cookware)
	fmt.Fprintf(w, "wasteLog\t%d\n", s.WasteLog)
	fmt.Fprintf(w, "consumedLog\t%d\n", s.ConsumedLog)
	fmt.Fprintf(w, "customLocations\t%d\n", s.CustomLocations)
	w.Flush()
	for _, warning := range resp.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireUser(syncUser); err != nil {
		return err
	}
	c, err := newRemoteClient()
	if err != nil {
		return err
	}

	st, err := c.Status(cmd.Context(), syncUser)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}

	out := cmd.OutOrStdout()
	last := "never"
	if st.LastSyncedAt != nil {
		last = st.LastSyncedAt.Format(time.RFC3339)
	}
	w := newTabWriter(out)
	fmt.Fprintf(w, "User:\t%s\n", syncUser)
	fmt.Fprintf(w, "Last synced:\t%s\n", last)
	fmt.Fprintf(w, "Consistent:\t%t\n", st.IsConsistent)
	fmt.Fprintf(w, "Failures (24h):\t%d\n", st.FailedOperations24h)
	fmt.Fprintf(w, "Inventory:\t%d\n", st.DataTypes.Inventory)
	fmt.Fprintf(w, "Recipes:\t%d\n", st.DataTypes.Recipes)
	fmt.Fprintf(w, "Meal plans:\t%d\n", st.DataTypes.MealPlans)
	fmt.Fprintf(w, "Shopping list:\t%d\n", st.DataTypes.ShoppingList)
	fmt.Fprintf(w, "Cookware:\t%d\n", st.DataTypes.Cookware)
	w.Flush()

	if len(st.RecentFailures) > 0 {
		fmt.Fprintln(out, "\nRecent failures:")
		fw := newTabWriter(out)
		fmt.Fprintln(fw, "TIME\tDATA TYPE\tOPERATION\tERROR")
		for _, f := range st.RecentFailures {
			fmt.Fprintf(fw, "%s\t%s\t%s\t%s\n",
				f.Timestamp.Format(time.RFC3339), f.DataType, f.Operation, f.ErrorMessage)
		}
		fw.Flush()
	}
	return nil
}

var (
	planCollection string
	planLimit      string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage per-user plan limits",
}

var planSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set a user's plan limit for a collection",
	Args:  cobra.NoArgs,
	RunE:  runPlanSet,
}

func init() {
	planSetCmd.Flags().StringVar(&planCollection, "collection", "", "Collection (inventory or cookware)")
	planSetCmd.Flags().StringVar(&planLimit, "limit", "", "Maximum records, or \"unlimited\"")
	planCmd.AddCommand(planSetCmd)
}

// parsePlanLimit accepts a non-negative count or "unlimited".
func parsePlanLimit(s string) (int, error) {
	if s == "unlimited" || s == "-1" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("--limit must be a non-negative number or \"unlimited\", got %q", s)
	}
	return n, nil
}

func runPlanSet(cmd *cobra.Command, args []string) error {
	if err := requireUser(syncUser); err != nil {
		return err
	}
	limit, err := parsePlanLimit(planLimit)
	if err != nil {
		return err
	}
	c, err := newRemoteClient()
	if err != nil {
		return err
	}
	if err := c.SetPlanLimit(cmd.Context(), syncUser, planCollection, limit); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plan limit for %s/%s set to %s\n", syncUser, planCollection, planLimit)
	return nil
}
