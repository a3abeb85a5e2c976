package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/larder/pkg/client"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	serverURL  string
	apiKey     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "larder",
	Short:         "Larder - kitchen data sync and backup service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LARDER_URL", "http://localhost:8080"),
		"Larder server URL (env LARDER_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "",
		"API key for remote commands (defaults to LARDER_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(archiveCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newRemoteClient builds an API client from the persistent flags.
func newRemoteClient() (*client.Client, error) {
	key := apiKey
	if key == "" {
		key = os.Getenv("LARDER_API_KEY")
	}
	return client.New(client.Config{BaseURL: serverURL, APIKey: key})
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}
