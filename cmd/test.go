package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:     "test",
	Short:   "Test connection to TMDB",
	Long:    `Test the connection to the TMDB API using the configured URL and API key.`,
	PreRunE: initializeApp,
	RunE:    runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Testing connection to TMDB at %s...\n", cfg.TMDB.URL)

	if err := tmdbClient.TestConnection(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(out, "✓ Connection successful!")
	fmt.Fprintf(out, "- API version: %s\n", cfg.TMDB.Version)
	fmt.Fprintf(out, "- Concurrent requests: %d\n", cfg.TMDB.Concurrency)
	fmt.Fprintf(out, "- Response cache: %s\n", boolToStatus(cfg.Cache.Enabled))

	return nil
}

func boolToStatus(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}
