package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainscribe/chainscribe/pkg/history"
	"github.com/chainscribe/chainscribe/pkg/report"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <document-id>",
		Short: "List recorded changes for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			h, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			recs, err := h.List(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.ChangeRecords(recs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")
	return cmd
}
