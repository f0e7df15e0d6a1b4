package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the credit service tables",
	Long: `Apply the embedded schema. The statements are idempotent: ledger columns are
added to an existing users table, and the payments and prediction_accesses tables
and their indexes are created when missing.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.repo.ApplySchema(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
	return nil
}
