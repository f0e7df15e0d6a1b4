package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
)

const (
	cancelReasonUser     = "cancelled by user"
	cancelReasonOperator = "cancelled by operator"
)

// CancelPayment aborts a pending payment owned by userID. When the gateway already
// reports the push as paid, the payment is completed instead and returned as such.
func (s *Service) CancelPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.GetPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	return s.cancelPayment(ctx, payment, cancelReasonUser)
}

// CancelPaymentByID is the operator variant of CancelPayment; it skips the ownership check.
func (s *Service) CancelPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.cancelPayment(ctx, payment, cancelReasonOperator)
}

func (s *Service) cancelPayment(ctx context.Context, payment *domain.Payment, reason string) (*domain.Payment, error) {
	if payment.IsTerminal() {
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentNotCancellable, payment.Status)
	}

	if payment.CheckoutRequestID != nil {
		status, err := s.QueryStatus(ctx, *payment.CheckoutRequestID)
		if err != nil {
			log.Printf("level=warn component=cancel msg=\"cancel refused; gateway state unknown\" payment_id=%s err=%v", payment.ID, err)
			return nil, err
		}
		if status.Success {
			log.Printf("level=info component=cancel msg=\"cancel superseded by gateway success\" payment_id=%s", payment.ID)
			return s.repo.FindPaymentByID(ctx, payment.ID)
		}
	}

	result, err := s.finalizePayment(ctx, payment, domain.PaymentStatusCancelled, FinalizeDetails{FailureReason: reason})
	if err != nil {
		return nil, err
	}
	if result.AlreadyFinalized && result.Payment.Status != domain.PaymentStatusCancelled {
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentNotCancellable, result.Payment.Status)
	}
	log.Printf("level=info component=cancel msg=\"payment cancelled\" payment_id=%s user_id=%s reason=%q", payment.ID, payment.UserID, reason)
	return result.Payment, nil
}
