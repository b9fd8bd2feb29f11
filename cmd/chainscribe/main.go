package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chainscribe",
		Short:         "ChainScribe: cost-governed AI document analysis backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CHAINSCRIBE_CONFIG"),
		"path to config file (built-in defaults when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
		newCostCmd(&configPath),
		newHistoryCmd(&configPath),
		newAuditCmd(&configPath),
		newCacheCmd(&configPath),
		newAdminCmd(),
	)
	return root
}
