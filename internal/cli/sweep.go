package cli

import (
	"fmt"
	"io"

	"github.com/predictpro/credit-service/internal/app"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Resolve payments left pending past their TTL",
	Long: `Run one pass of the pending-payment sweep that the service runs on a schedule.
Each stale payment is polled at the gateway first; payments the gateway confirms
are completed and the rest are failed as expired.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.service.ExpireStalePayments(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), summary, func(w io.Writer) {
		writeSweepSummary(w, summary)
	})
}

func writeSweepSummary(w io.Writer, summary *app.SweepSummary) {
	fmt.Fprintf(w, "Examined:  %d\n", summary.Examined)
	fmt.Fprintf(w, "Completed: %d\n", summary.Completed)
	fmt.Fprintf(w, "Expired:   %d\n", summary.Expired)
	fmt.Fprintf(w, "Skipped:   %d\n", summary.Skipped)
}
