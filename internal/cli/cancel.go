package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <payment-id>",
	Short: "Cancel a pending payment",
	Long: `Cancel a pending payment on behalf of its owner. When the payment has reached the
gateway it is polled first: a payment the gateway reports as paid is completed
instead of cancelled, and an unreachable gateway aborts the cancel.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	paymentID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid payment id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	payment, err := rt.service.CancelPaymentByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), payment, func(w io.Writer) {
		writePayment(w, payment)
	})
}

func writePayment(w io.Writer, p *domain.Payment) {
	fmt.Fprintf(w, "Payment:   %s\n", p.ID)
	fmt.Fprintf(w, "Status:    %s\n", p.Status)
	if p.FailureReason != nil {
		fmt.Fprintf(w, "Reason:    %s\n", *p.FailureReason)
	}
	if p.ReceiptNumber != nil {
		fmt.Fprintf(w, "Receipt:   %s\n", *p.ReceiptNumber)
	}
}
