package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/predictpro/credit-service/internal/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <checkout-request-id>",
	Short: "Poll the gateway for a payment and finalize it if it succeeded",
	Long: `Query M-Pesa for the outcome of an STK push. A success report completes the
payment through the same path as the webhook, so running this for a payment that
is already completed changes nothing.

Examples:
  paymentsctl status ws_CO_191220191020363925
  paymentsctl status ws_CO_191220191020363925 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	checkoutRequestID := strings.TrimSpace(args[0])
	if checkoutRequestID == "" {
		return fmt.Errorf("checkout request id is required")
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.service.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("status query failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		writeStatus(w, result)
	})
}

func writeStatus(w io.Writer, result *domain.StatusResult) {
	fmt.Fprintf(w, "Checkout:  %s\n", result.CheckoutRequestID)
	switch {
	case result.Pending:
		fmt.Fprintln(w, "Gateway:   still processing")
	case result.Success:
		fmt.Fprintln(w, "Gateway:   paid")
	default:
		fmt.Fprintf(w, "Gateway:   not paid (code %s)\n", valueOrDash(result.ResultCode))
	}
	fmt.Fprintf(w, "Detail:    %s\n", valueOrDash(result.ResultDesc))
	fmt.Fprintf(w, "Payment:   %s\n", valueOrDash(result.PaymentStatus))
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
