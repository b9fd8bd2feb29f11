package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chainscribe/chainscribe/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start ChainScribe as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := stderrLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			deps := mcp.Deps{
				Ledger:  a.governor,
				Usage:   a.journal,
				Changes: a.changes,
				History: a.history,
			}
			// Assigned only when set so the interfaces stay nil.
			if a.auditor != nil {
				deps.Audit = a.auditor
			}
			if a.cache != nil {
				deps.Cache = a.cache
			}

			return mcp.New(deps, version, logger.With("component", "mcp")).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
