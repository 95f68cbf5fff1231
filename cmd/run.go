package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

var (
	runDomain    string
	runLegalName string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a single customer end to end in-process",
	Long:  "Runs the full stage graph for one customer over the in-memory transport, draining every derived message before returning.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		broker := queue.NewBroker()
		env, err := initEnv(ctx, broker)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.ResearchRequest{
			Domain:    runDomain,
			LegalName: runLegalName,
		}
		if err := req.Validate(); err != nil {
			return err
		}
		if err := broker.Publish(ctx, queue.TopicMasterData, req); err != nil {
			return err
		}

		maxReceive := cfg.Pipeline.MaxReceive
		if maxReceive <= 0 {
			maxReceive = 3
		}
		if err := broker.Drain(ctx, env.Pipeline.Routes(env.Ingest), maxReceive); err != nil {
			return eris.Wrap(err, "drain pipeline")
		}

		zap.L().Info("research complete", zap.String("customer", req.Domain))

		// Print the briefing when the pipeline got that far.
		prep, err := store.GetEntity[model.MeetingPrep](ctx, env.Store, store.CollectionMeetingPrep, req.Domain)
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("no meeting prep produced; check vendor catalog configuration")
			return nil
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prep)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDomain, "domain", "", "customer domain (required)")
	runCmd.Flags().StringVar(&runLegalName, "legal-name", "", "customer legal name (required)")
	_ = runCmd.MarkFlagRequired("domain")
	_ = runCmd.MarkFlagRequired("legal-name")
	rootCmd.AddCommand(runCmd)
}
