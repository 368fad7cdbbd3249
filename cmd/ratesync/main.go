package main

import (
	"fmt"
	"os"

	"ratesync/internal/check"
	"ratesync/internal/config"
	"ratesync/internal/logging"
	"ratesync/internal/patch"
	"ratesync/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	datasetPath string
	targetPath  string
	logFormat   string

	// Patch flags
	extended  bool
	keepGoing bool
	limit     int

	// Resolved at startup
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ratesync",
	Short: "Sync trip-generation rates from an extracted dataset into ite-database.js",
	Long: `ratesync cross-references an extracted ITE dataset (JSON, keyed by land-use
code) with the JavaScript trip-generation database and updates AM/PM peak
rates and directional splits.

Run without a subcommand to print the significant directional split changes
(same as "ratesync report"). Nothing is written unless you run
"ratesync apply --write".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = resolveConfig(cmd)
		if err != nil {
			return err
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		var runID string
		logger, runID = logging.WithRun(logger)
		logging.Get(logger, logging.CategoryBoot).Debug("Configuration resolved",
			zap.String("run_id", runID),
			zap.String("dataset", cfg.Dataset),
			zap.String("target", cfg.Target))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runReport,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or .toml; default: ./"+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&datasetPath, "dataset", "", "Extracted dataset JSON (overrides config)")
	rootCmd.PersistentFlags().StringVar(&targetPath, "target", "", "JavaScript database to patch (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")

	rootCmd.PersistentFlags().BoolVar(&extended, "extended", false, "Also patch r_squared, sample_size and weekday values")
	rootCmd.PersistentFlags().BoolVar(&keepGoing, "keep-going", false, "Skip codes with malformed dataset values instead of aborting")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0, "Number of notes to print before truncating (default from config)")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	} else {
		path = config.DefaultPath
	}

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if datasetPath != "" {
		c.Dataset = datasetPath
	}
	if targetPath != "" {
		c.Target = targetPath
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func patchOptions() patch.Options {
	return patch.Options{
		SplitTolerance: int64(cfg.Patch.SplitTolerance),
		Extended:       extended || cfg.Patch.ExtendedFields,
		KeepGoing:      keepGoing || cfg.Patch.KeepGoing,
		Logger:         logger,
	}
}

func checkOptions() check.Options {
	return check.Options{
		RateTolerancePct: cfg.Check.RateTolerancePct,
		SplitTolerance:   int64(cfg.Check.SplitTolerance),
	}
}

func reportLimit() int {
	if limit > 0 {
		return limit
	}
	return cfg.Report.Limit
}

// loadAndPatch loads both inputs and patches the document in memory.
func loadAndPatch() (*pipeline.Inputs, *patch.Result, error) {
	in, err := pipeline.Load(cfg.Dataset, cfg.Target, logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := in.Patch(patchOptions())
	if err != nil {
		return nil, nil, err
	}
	return in, res, nil
}

// warnKeepGoing surfaces codes skipped because of malformed dataset values.
func warnKeepGoing(cmd *cobra.Command, res *patch.Result) {
	if res.Err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: some codes were skipped:\n%v\n", res.Err)
}
