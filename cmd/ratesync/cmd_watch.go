package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratesync/internal/logging"
	"ratesync/internal/report"
	"ratesync/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var debounce time.Duration

var errInterrupted = errors.New("interrupted")

// watchCmd re-runs the report when the dataset or database changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-print the report whenever the dataset or database changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before re-running (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logging.Get(logger, logging.CategoryWatch)
	out := cmd.OutOrStdout()

	runOnce := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			fmt.Fprintf(out, "\n== %s: changed %v\n", time.Now().Format(time.TimeOnly), changed)
		}
		_, res, err := loadAndPatch()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			return err
		}
		warnKeepGoing(cmd, res)
		return report.Notes(out, res.Notes, reportLimit())
	}

	// A failing first run is reported; the watch still starts.
	_ = runOnce(cmd.Context(), nil)

	wait := debounce
	if wait <= 0 {
		wait = cfg.GetDebounce()
	}
	w, err := watch.New([]string{cfg.Dataset, cfg.Target}, wait, runOnce, log)
	if err != nil {
		return err
	}
	log.Info("Watching for changes", zap.String("dataset", cfg.Dataset), zap.String("target", cfg.Target))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return w.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-sigCh:
			log.Info("Received shutdown signal")
			return errInterrupted
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errInterrupted) {
		return err
	}
	return nil
}
