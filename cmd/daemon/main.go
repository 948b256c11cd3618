// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/version"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Service-advisor estimate pipeline",
		Long:  "Runs the estimate pipeline orchestrator behind the chat-dispatch HTTP surface.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to shop config file (YAML)")

	rootCmd.AddCommand(versionCmd(), configCmd())

	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.L().Fatal().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
			return nil
		},
	}
}
