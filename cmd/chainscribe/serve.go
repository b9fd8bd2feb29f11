package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainscribe/chainscribe/pkg/scheduler"
	"github.com/chainscribe/chainscribe/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			logger := stderrLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sched := scheduler.New(time.Local, logger.With("component", "scheduler"))
			if err := a.schedule(sched); err != nil {
				return fmt.Errorf("schedule jobs: %w", err)
			}
			sched.Start(ctx)
			defer sched.Stop()

			srv := server.New(cfg, server.Deps{
				Ledger:   a.governor,
				Analyzer: a.analysis,
				Changes:  a.changes,
				History:  a.history,
				Usage:    a.journal,
				Storage:  a.storage,
			}, logger.With("component", "http"))

			logger.Info("starting chainscribe", "version", version, "config", *configPath,
				"daily_budget", cfg.Budget.DailyBudget, "providers", len(cfg.Inference.Providers))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
