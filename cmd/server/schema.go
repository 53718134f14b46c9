package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or migrate the ledger schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, closeStore, err := openLedgerStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			logger.Info("ledger schema ready")
			return nil
		},
	}
}
