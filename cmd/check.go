package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/airdate/config"
	"github.com/s0up4200/airdate/filter"
	"github.com/s0up4200/airdate/tracker"
)

var (
	stateFile  string
	filterExpr string
	preset     string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show the last and next episodes of the tracked shows",
	Long: `Fetch every show listed in the state file from TMDB and print a summary.

Shows whose tracked season is the latest one are reported as "nothing new".
Use --filter or --preset to narrow the output with an expression, e.g.

  airdate check --filter 'HasNext && daysUntil(NextAirDate) <= 7'`,
	PreRunE: initializeApp,
	RunE:    runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&stateFile, "state", "s", "", "state file listing the tracked shows (default from config)")
	checkCmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "filter expression")
	checkCmd.Flags().StringVarP(&preset, "preset", "p", "", "use a preset filter from config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := cfg.State.File
	if stateFile != "" {
		path = stateFile
	}

	shows, err := config.LoadShows(path)
	if err != nil {
		return err
	}

	// Compile the filter before spending any requests
	expression, err := cfg.FilterExpression(filterExpr, preset)
	if err != nil {
		return err
	}
	var showFilter *filter.Filter
	if expression != "" {
		showFilter, err = filter.Compile(expression)
		if err != nil {
			return fmt.Errorf("invalid filter expression: %w", err)
		}
	}

	logger.Info().
		Int("shows", len(shows)).
		Int("concurrency", cfg.TMDB.Concurrency).
		Msg("Fetching shows")

	start := time.Now()
	results := tracker.New(tmdbClient, logger).FetchAll(cmd.Context(), shows)

	status := tmdbClient.Status()
	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int64("requests", status.Attempts).
		Int64("rate_limited", status.RateLimited).
		Msg("Fetched shows")

	if showFilter != nil {
		logger.Debug().Str("filter", showFilter.Expression()).Msg("Applying filter")
		results, err = showFilter.Apply(results)
		if err != nil {
			return err
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), tracker.NewConsoleFormatter().FormatSummary(results))

	if err := tmdbClient.SaveCache(); err != nil {
		logger.Warn().Err(err).Msg("Failed to save response cache")
	}

	return nil
}
