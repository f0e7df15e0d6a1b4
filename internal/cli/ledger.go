package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <user-id>",
	Short: "Show a user's credit ledger and recent payments",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedger,
}

type ledgerReport struct {
	Ledger   *domain.LedgerSnapshot `json:"ledger"`
	Payments []domain.Payment       `json:"payments"`
}

func runLedger(cmd *cobra.Command, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ledger := app.NewLedger(rt.repo, rt.cfg.FreePredictionsLimit)
	snapshot, err := ledger.Snapshot(ctx, userID, decimal.NewFromFloat(rt.cfg.PredictionAccessCost))
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	payments, err := rt.repo.FindPaymentsByUserID(ctx, userID, 10)
	if err != nil {
		return fmt.Errorf("failed to load payments: %w", err)
	}

	report := ledgerReport{Ledger: snapshot, Payments: payments}
	return printResult(cmd.OutOrStdout(), report, func(w io.Writer) {
		writeLedgerReport(w, userID, report)
	})
}

func writeLedgerReport(w io.Writer, userID uuid.UUID, report ledgerReport) {
	snap := report.Ledger
	fmt.Fprintf(w, "User:            %s\n", userID)
	fmt.Fprintf(w, "Balance:         %s USD\n", snap.Balance.StringFixed(2))
	fmt.Fprintf(w, "Free used:       %d (%d remaining)\n", snap.FreePredictionsUsed, snap.FreePredictionsRemaining)
	fmt.Fprintf(w, "Total accessed:  %d\n", snap.TotalPredictionsAccessed)
	fmt.Fprintf(w, "Next cost:       %s USD\n", snap.NextPredictionCost.StringFixed(2))

	if len(report.Payments) == 0 {
		fmt.Fprintln(w, "\nNo payments")
		return
	}
	fmt.Fprintln(w, "\nRecent payments:")
	for _, p := range report.Payments {
		fmt.Fprintf(w, "  %s  %-9s  %-17s  %8s USD  %s\n", p.ID, p.Status, p.Purpose, p.Amount.StringFixed(2), p.CreatedAt.Format("2006-01-02 15:04"))
	}
}
