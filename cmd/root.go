package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/airdate/config"
	"github.com/s0up4200/airdate/tmdb"
)

var (
	cfgFile    string
	cfg        *config.Config
	logger     = zerolog.Nop()
	tmdbClient *tmdb.Client

	// Command flags
	concurrency int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "airdate",
	Short: "Find out when the next episodes of your shows air",
	Long: `airdate looks up the shows listed in a state file on TMDB and prints
when their last episode aired and when the next one is due.

Requests are fanned out concurrently while staying inside the TMDB rate limit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum number of concurrent TMDB requests")
}

// initializeApp initializes the configuration and clients
func initializeApp(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger = setupLogger(cfg.Logging)

	// Override concurrency from command line if specified
	if cmd.Flags().Changed("concurrency") {
		cfg.TMDB.Concurrency = concurrency
	}

	opts := []tmdb.Option{
		tmdb.WithTimeout(cfg.TMDB.Timeout),
		tmdb.WithConcurrency(cfg.TMDB.Concurrency),
		tmdb.WithRequestRate(cfg.TMDB.RequestsPerSecond, cfg.TMDB.Burst),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, tmdb.WithCache(cfg.Cache.TTL, cfg.Cache.File))
	}

	// Create TMDB client
	tmdbClient, err = tmdb.NewClient(cfg.TMDB.URL, cfg.TMDB.Version, cfg.TMDB.APIKey, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create TMDB client: %w", err)
	}

	logger.Debug().
		Str("url", cfg.TMDB.URL).
		Int("concurrency", cfg.TMDB.Concurrency).
		Float64("requests_per_second", cfg.TMDB.RequestsPerSecond).
		Bool("cache", cfg.Cache.Enabled).
		Msg("TMDB client ready")

	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Console format, no colours when stderr is redirected
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isatty.IsTerminal(os.Stderr.Fd()),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
