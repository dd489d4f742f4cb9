package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"clipforge/internal/delivery"
	"clipforge/internal/fileutil"
	"clipforge/internal/intake"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the render daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, cmdContext *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cmdContext.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "clipforge.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return errors.New("another clipforge instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	// Jobs left in flight by a previous run can never finish; their scratch
	// files are reclaimed along with any other leftovers.
	failed, err := store.FailInFlight(signalCtx)
	if err != nil {
		logger.Warn("failed to mark stale jobs", logging.Error(err))
	} else if failed > 0 {
		logger.Info("marked stale in-flight jobs failed", logging.Int64("jobs", failed))
	}
	swept, err := fileutil.SweepScratch(cfg.Paths.TempDir, "clip-", "final_")
	if err != nil {
		logger.Warn("scratch sweep failed", logging.Error(err))
	} else if swept > 0 {
		logger.Info("swept leftover scratch files", logging.Int("files", swept))
	}

	messenger, err := delivery.Connect(cfg.Discord.Token, logger)
	if err != nil {
		return fmt.Errorf("connect delivery channel: %w", err)
	}
	defer func() {
		if err := messenger.Close(); err != nil {
			logger.Warn("delivery disconnect failed", logging.Error(err))
		}
	}()

	manager := pipeline.NewManager(cfg, store, messenger, logger)
	server := intake.NewServer(cfg, manager, logger)
	if err := server.Start(signalCtx); err != nil {
		manager.Stop()
		return err
	}

	logger.Info("clipforge daemon started",
		logging.String("bind", server.Addr()),
		logging.String("channel", cfg.Discord.ChannelID),
		logging.Int("max_concurrent_jobs", cfg.Workflow.MaxConcurrentJobs),
	)

	<-signalCtx.Done()
	logger.Info("shutting down")

	server.Stop()
	manager.Stop()
	return nil
}
