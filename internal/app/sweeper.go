package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/pkg/mpesa"
)

const sweepBatchSize = 100

// SweepSummary counts what one sweep run did.
type SweepSummary struct {
	Examined  int `json:"examined"`
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
	Skipped   int `json:"skipped"`
}

// ExpireStalePayments resolves payments left pending past the configured TTL. Each one is
// polled at the gateway first so a payment that was made but never announced is completed
// rather than expired; the rest are failed.
func (s *Service) ExpireStalePayments(ctx context.Context) (*SweepSummary, error) {
	ttl := s.cfg.PendingPaymentTTL
	cutoff := s.now().Add(-ttl)
	payments, err := s.repo.FindStalePendingPayments(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load stale payments: %w", err)
	}

	summary := &SweepSummary{Examined: len(payments)}
	for i := range payments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		payment := &payments[i]
		switch s.resolveStalePayment(ctx, payment, ttl.String()) {
		case domain.PaymentStatusCompleted:
			summary.Completed++
		case domain.PaymentStatusFailed:
			summary.Expired++
		default:
			summary.Skipped++
		}
	}

	if summary.Examined > 0 {
		log.Printf("level=info component=sweeper msg=\"stale payment sweep finished\" examined=%d completed=%d expired=%d skipped=%d", summary.Examined, summary.Completed, summary.Expired, summary.Skipped)
	}
	return summary, nil
}

// resolveStalePayment returns the status this run moved the payment to, or "" when
// it left the payment alone. Payments left alone are moved to the back of the
// stale queue.
func (s *Service) resolveStalePayment(ctx context.Context, payment *domain.Payment, ttl string) string {
	reason := "expired: no gateway outcome within " + ttl
	if payment.CheckoutRequestID != nil {
		status, err := s.QueryStatus(ctx, *payment.CheckoutRequestID)
		switch {
		case mpesa.IsRequestRejected(err):
			log.Printf("level=warn component=sweeper msg=\"gateway rejected status query; expiring payment\" payment_id=%s err=%v", payment.ID, err)
			reason = "expired: gateway rejected status query: " + rejectionMessage(err)
		case err != nil:
			log.Printf("level=warn component=sweeper msg=\"status poll failed; leaving payment pending\" payment_id=%s err=%v", payment.ID, err)
			s.deferStalePayment(ctx, payment)
			return ""
		case status.Success:
			if status.PaymentStatus == domain.PaymentStatusCompleted {
				return domain.PaymentStatusCompleted
			}
			s.deferStalePayment(ctx, payment)
			return ""
		case status.Pending:
			s.deferStalePayment(ctx, payment)
			return ""
		case strings.TrimSpace(status.ResultDesc) != "":
			reason = strings.TrimSpace(status.ResultDesc)
		}
	}

	result, err := s.finalizePayment(ctx, payment, domain.PaymentStatusFailed, FinalizeDetails{FailureReason: reason})
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"failed to expire payment\" payment_id=%s err=%v", payment.ID, err)
		s.deferStalePayment(ctx, payment)
		return ""
	}
	if !result.Applied {
		return ""
	}
	return domain.PaymentStatusFailed
}

func (s *Service) deferStalePayment(ctx context.Context, payment *domain.Payment) {
	if err := s.repo.RecordSweepAttempt(ctx, payment.ID); err != nil {
		log.Printf("level=warn component=sweeper msg=\"failed to record sweep attempt\" payment_id=%s err=%v", payment.ID, err)
	}
}

func rejectionMessage(err error) string {
	var apiErr *mpesa.APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.Code + " " + apiErr.Message); msg != "" {
			return msg
		}
	}
	return err.Error()
}
