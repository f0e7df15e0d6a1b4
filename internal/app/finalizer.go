package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/shopspring/decimal"
)

// FinalizeDetails carries the outcome data stamped on a payment when it is finalized.
type FinalizeDetails struct {
	ReceiptNumber string
	FailureReason string
	PaidAmount    *decimal.Decimal
	PayerPhone    string
}

// FinalizeResult reports what a finalize call did.
type FinalizeResult struct {
	Payment *domain.Payment
	// Applied is true only for the call that moved the payment out of pending.
	Applied bool
	// AlreadyFinalized is true when the payment was terminal before this call.
	AlreadyFinalized bool
	// Credited is the balance credit applied by this call, if any.
	Credited *decimal.Decimal
}

// Finalize resolves the payment identified by checkoutRequestID to outcome. Webhook
// deliveries and status polls both land here; repeated or racing calls are safe and
// only the first one has any effect.
func (s *Service) Finalize(ctx context.Context, checkoutRequestID, outcome string, details FinalizeDetails) (*FinalizeResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, validationError("checkout request id is required")
	}
	payment, err := s.repo.FindPaymentByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	return s.finalizePayment(ctx, payment, outcome, details)
}

func (s *Service) finalizePayment(ctx context.Context, payment *domain.Payment, outcome string, details FinalizeDetails) (*FinalizeResult, error) {
	if !domain.IsTerminalPaymentStatus(outcome) {
		return nil, fmt.Errorf("invalid finalize outcome %q", outcome)
	}
	if payment.IsTerminal() {
		return s.alreadyFinalized(payment, outcome), nil
	}

	params := store.FinalizePaymentParams{
		PaymentID:     payment.ID,
		Status:        outcome,
		ReceiptNumber: optionalString(details.ReceiptNumber),
		FailureReason: optionalString(details.FailureReason),
		PaidAmount:    details.PaidAmount,
		PayerPhone:    optionalString(details.PayerPhone),
		CreditTopup:   outcome == domain.PaymentStatusCompleted && payment.Purpose == domain.PurposeBalanceTopup,
	}
	updated, applied, err := s.repo.FinalizePayment(ctx, params)
	if err != nil {
		log.Printf("level=error component=finalizer msg=\"finalize failed\" payment_id=%s outcome=%s err=%v", payment.ID, outcome, err)
		return nil, fmt.Errorf("finalize payment %s: %w", payment.ID, err)
	}
	if !applied {
		return s.alreadyFinalized(updated, outcome), nil
	}

	var credited *decimal.Decimal
	if params.CreditTopup {
		amount := updated.Amount
		credited = &amount
	}

	log.Printf("level=info component=finalizer msg=\"payment finalized\" payment_id=%s user_id=%s status=%s purpose=%s credited=%t", updated.ID, updated.UserID, updated.Status, updated.Purpose, credited != nil)

	s.publishPaymentEvent(ctx, updated, credited)

	return &FinalizeResult{Payment: updated, Applied: true, Credited: credited}, nil
}

func (s *Service) alreadyFinalized(current *domain.Payment, outcome string) *FinalizeResult {
	if outcome == domain.PaymentStatusCompleted && current.Status != domain.PaymentStatusCompleted {
		// The customer paid but the record is already failed or cancelled.
		log.Printf("level=error component=finalizer msg=\"success reported for a payment already resolved; manual reconciliation required\" payment_id=%s user_id=%s status=%s", current.ID, current.UserID, current.Status)
	} else {
		log.Printf("level=info component=finalizer msg=\"payment already finalized; skipping\" payment_id=%s status=%s outcome=%s", current.ID, current.Status, outcome)
	}
	return &FinalizeResult{Payment: current, AlreadyFinalized: true}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
