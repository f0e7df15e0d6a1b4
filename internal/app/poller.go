package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/predictpro/credit-service/pkg/mpesa"
)

const rateLimitScopeStatus = "mpesa_status"

// QueryStatus asks the gateway for the outcome of an STK push. A success report is
// finalized through the same path as the webhook, so whichever arrives second is a no-op.
func (s *Service) QueryStatus(ctx context.Context, checkoutRequestID string) (*domain.StatusResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, validationError("checkout_request_id is required")
	}

	resp, err := s.gateway.STKQuery(ctx, checkoutRequestID)
	if err != nil {
		if mpesa.IsTransactionProcessing(err) {
			return &domain.StatusResult{
				Pending:           true,
				ResultDesc:        "The transaction is being processed",
				CheckoutRequestID: checkoutRequestID,
				PaymentStatus:     domain.PaymentStatusPending,
			}, nil
		}
		log.Printf("level=warn component=poller msg=\"stk query failed\" checkout_request_id=%s err=%v", checkoutRequestID, err)
		return nil, &GatewayRequestError{Op: "stk query", Err: err}
	}

	result := &domain.StatusResult{
		Success:           resp.ResultCode.IsSuccess(),
		ResultCode:        string(resp.ResultCode),
		ResultDesc:        resp.ResultDesc,
		CheckoutRequestID: checkoutRequestID,
	}
	if !result.Success {
		log.Printf("level=info component=poller msg=\"stk query reported no success\" checkout_request_id=%s result_code=%s result_desc=%q", checkoutRequestID, resp.ResultCode, resp.ResultDesc)
		return result, nil
	}

	finalized, err := s.Finalize(ctx, checkoutRequestID, domain.PaymentStatusCompleted, FinalizeDetails{})
	switch {
	case errors.Is(err, store.ErrPaymentNotFound):
		log.Printf("level=warn component=poller msg=\"gateway reported success for unknown payment\" checkout_request_id=%s", checkoutRequestID)
	case err != nil:
		return nil, err
	default:
		result.PaymentStatus = finalized.Payment.Status
	}
	return result, nil
}

// QueryStatusForUser polls a payment owned by userID. Payments that are already
// resolved are answered from the store without calling the gateway.
func (s *Service) QueryStatusForUser(ctx context.Context, userID uuid.UUID, checkoutRequestID string) (*domain.StatusResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, validationError("checkout_request_id is required")
	}
	if err := s.checkRateLimit(ctx, rateLimitScopeStatus, userID, s.cfg.StatusQueryRateLimitPerMinute); err != nil {
		return nil, err
	}

	payment, err := s.repo.FindPaymentByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, store.ErrPaymentNotFound
	}
	if payment.IsTerminal() {
		return storedStatus(payment), nil
	}

	result, err := s.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if result.PaymentStatus == "" {
		result.PaymentStatus = payment.Status
	}
	return result, nil
}

func storedStatus(payment *domain.Payment) *domain.StatusResult {
	result := &domain.StatusResult{
		Success:       payment.Status == domain.PaymentStatusCompleted,
		PaymentStatus: payment.Status,
	}
	if payment.CheckoutRequestID != nil {
		result.CheckoutRequestID = *payment.CheckoutRequestID
	}
	switch {
	case result.Success:
		result.ResultCode = "0"
		result.ResultDesc = "The service request is processed successfully."
	case payment.FailureReason != nil:
		result.ResultDesc = *payment.FailureReason
	default:
		result.ResultDesc = "Payment " + payment.Status
	}
	return result
}
