package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chainscribe/chainscribe/pkg/config"
	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/report"
	"github.com/chainscribe/chainscribe/pkg/usage"
)

func newCostCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Inspect and manage the daily cost ledger",
	}
	cmd.AddCommand(
		newCostReportCmd(configPath),
		newCostHistoryCmd(configPath),
		newCostResetCmd(configPath),
	)
	return cmd
}

// openLedger restores a governor from the usage journal.
func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cost.Governor, *usage.Journal, error) {
	j, err := usage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	rates, err := cost.NewRateTable(cfg.Rates.Models, cfg.Rates.Fallback)
	if err != nil {
		_ = j.Close()
		return nil, nil, err
	}
	g, err := cost.NewGovernor(cfg.Budget.DailyBudget, rates,
		cost.WithJournal(j), cost.WithLogger(logger), cost.WithWarningRatio(cfg.Budget.WarningRatio))
	if err != nil {
		_ = j.Close()
		return nil, nil, err
	}
	if err := g.Restore(ctx); err != nil {
		_ = j.Close()
		return nil, nil, err
	}
	return g, j, nil
}

func newCostReportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show today's spend against the daily budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			g, j, err := openLedger(cmd.Context(), cfg, stderrLogger(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			fmt.Fprint(cmd.OutOrStdout(), report.DailyReport(g.DailyReport()))
			return nil
		},
	}
}

func newCostHistoryCmd(configPath *string) *cobra.Command {
	var (
		days  int
		since string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled spend per day and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			from, err := parseSince(since, days)
			if err != nil {
				return err
			}
			j, err := usage.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			out, err := j.Days(cmd.Context(), from)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.UsageDays(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "number of days to include, today counted")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD), overrides --days")
	return cmd
}

func newCostResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Archive today's ledger entries and zero the daily usage",
		Long: "Archive today's ledger entries and zero the daily usage. A running server keeps\n" +
			"its in-memory ledger; use POST /api/cost/reset to reset it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			g, j, err := openLedger(cmd.Context(), cfg, stderrLogger(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			before := g.Usage()
			if err := g.ResetDailyUsage(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daily usage reset ($%.4f archived).\n", before)
			return nil
		},
	}
}
