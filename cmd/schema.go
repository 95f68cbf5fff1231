package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/store"
)

var schemaOverwrite bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Declare the document store collections",
	Long:  "Creates every collection, relation, and vector slot the pipeline writes to. With --overwrite, existing collections are dropped first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for _, def := range store.Collections() {
			if err := st.EnsureCollection(ctx, def, schemaOverwrite); err != nil {
				return err
			}
			zap.L().Info("collection ensured",
				zap.String("collection", def.Name),
				zap.Int("relations", len(def.Relations)),
				zap.Int("vector_slots", len(def.VectorSlots)),
			)
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaOverwrite, "overwrite", false, "drop and recreate existing collections")
	rootCmd.AddCommand(schemaCmd)
}
