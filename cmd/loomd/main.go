package main

import (
	"os"

	"github.com/loomworks/loom/internal/client"
	"github.com/loomworks/loom/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool

	loomClient client.LoomClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("LOOM_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "loomd <command>",
	Short: "Per-entity coordination service for the content platform",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		loomClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if loomClient != nil {
			loomClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("LOOM_AUTH_TOKEN"), "bearer token for the server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "entities", Title: "Entities:"},
		&cobra.Group{ID: "triage", Title: "Triage:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Entities
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(evictCmd)

	// Triage
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(alarmCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
