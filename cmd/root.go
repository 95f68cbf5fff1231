package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "customer-intel",
	Short: "Asynchronous company research pipeline",
	Long:  "Researches customers and their competitive field through staged LLM generation: master data, assessment, competition, market and competition analysis, IT strategy, service matching, and meeting preparation.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
