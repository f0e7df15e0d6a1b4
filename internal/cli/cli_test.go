package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func TestIDArgumentsValidatedBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		run  func(*cobra.Command, []string) error
		arg  string
		want string
	}{
		{"ledger", runLedger, "not-a-uuid", "invalid user id"},
		{"cancel", runCancel, "42", "invalid payment id"},
		{"status", runStatus, "   ", "checkout request id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&cobra.Command{}, []string{tt.arg})
			if err == nil {
				t.Fatalf("expected error for %q", tt.arg)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestCommandArgs(t *testing.T) {
	if err := ledgerCmd.Args(ledgerCmd, nil); err == nil {
		t.Error("ledger without a user id should be rejected")
	}
	if err := sweepCmd.Args(sweepCmd, []string{"extra"}); err == nil {
		t.Error("sweep should take no arguments")
	}
	if err := statusCmd.Args(statusCmd, []string{"ws_CO_1"}); err != nil {
		t.Errorf("status with one argument: %v", err)
	}
}

func TestWriteStatus(t *testing.T) {
	tests := []struct {
		name   string
		result domain.StatusResult
		want   []string
	}{
		{
			name:   "paid",
			result: domain.StatusResult{Success: true, ResultCode: "0", ResultDesc: "processed", CheckoutRequestID: "ws_CO_1", PaymentStatus: "completed"},
			want:   []string{"ws_CO_1", "paid", "completed"},
		},
		{
			name:   "processing",
			result: domain.StatusResult{Pending: true, CheckoutRequestID: "ws_CO_2"},
			want:   []string{"still processing", "Payment:   -"},
		},
		{
			name:   "cancelled by payer",
			result: domain.StatusResult{ResultCode: "1032", ResultDesc: "Request cancelled by user", CheckoutRequestID: "ws_CO_3", PaymentStatus: "pending"},
			want:   []string{"not paid (code 1032)", "Request cancelled by user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeStatus(&buf, &tt.result)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestPrintResultJSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()

	var buf bytes.Buffer
	summary := &app.SweepSummary{Examined: 3, Completed: 1, Expired: 2}
	if err := printResult(&buf, summary, func(io.Writer) {}); err != nil {
		t.Fatalf("printResult: %v", err)
	}
	if !strings.Contains(buf.String(), `"expired": 2`) {
		t.Errorf("unexpected JSON output:\n%s", buf.String())
	}
}

func TestWriteLedgerReport(t *testing.T) {
	userID := uuid.New()
	receipt := "QKJ4ABC123"
	report := ledgerReport{
		Ledger: &domain.LedgerSnapshot{
			FreePredictionsUsed:      4,
			FreePredictionsRemaining: 0,
			TotalPredictionsAccessed: 9,
			Balance:                  decimal.RequireFromString("1.5"),
			NextPredictionCost:       decimal.RequireFromString("0.1"),
		},
		Payments: []domain.Payment{{
			ID:            uuid.New(),
			Status:        domain.PaymentStatusCompleted,
			Purpose:       domain.PurposeBalanceTopup,
			Amount:        decimal.RequireFromString("2"),
			ReceiptNumber: &receipt,
		}},
	}

	var buf bytes.Buffer
	writeLedgerReport(&buf, userID, report)
	out := buf.String()
	for _, want := range []string{userID.String(), "1.50 USD", "4 (0 remaining)", "Recent payments:", "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	writeLedgerReport(&buf, userID, ledgerReport{Ledger: report.Ledger})
	if !strings.Contains(buf.String(), "No payments") {
		t.Errorf("expected empty payment notice:\n%s", buf.String())
	}
}
