package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/pkg/mpesa"
)

const (
	accountReferencePrefix = "PRED"
	amountScale            = 2
	rateLimitScopeInitiate = "mpesa_initiate"

	unrecordedCheckoutReason = "reconcile: checkout request id not recorded:"
)

// InitiatePayment opens a pending payment and asks the gateway to push a payment
// prompt to the customer's phone. Validation failures create nothing; a gateway
// failure leaves the payment failed.
func (s *Service) InitiatePayment(ctx context.Context, userID uuid.UUID, req domain.InitiatePaymentRequest) (*domain.InitiatePaymentResult, error) {
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		purpose = domain.PurposeBalanceTopup
	}
	if !domain.IsValidPurpose(purpose) {
		return nil, validationError("purpose must be %q or %q", domain.PurposePredictionAccess, domain.PurposeBalanceTopup)
	}
	minimum := minimumAmounts[purpose]
	if req.Amount.LessThan(minimum) {
		return nil, validationError("minimum amount for %s is %s", purpose, minimum.String())
	}
	if req.Amount.GreaterThan(maximumAmount) {
		return nil, validationError("maximum amount per payment is %s", maximumAmount.String())
	}
	// The amount is stored with cents precision; the charge and the credit must agree.
	if !req.Amount.Equal(req.Amount.Round(amountScale)) {
		return nil, validationError("amount must have at most %d decimal places", amountScale)
	}
	if req.PredictionsCount < 0 {
		return nil, validationError("predictions count cannot be negative")
	}

	if err := s.checkRateLimit(ctx, rateLimitScopeInitiate, userID, s.cfg.InitiateRateLimitPerMinute); err != nil {
		return nil, err
	}

	phone := mpesa.NormalizePhoneNumber(req.PhoneNumber)
	if phone == "" {
		ledger, err := s.repo.FindLedgerByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if ledger.PhoneNumber != nil {
			phone = mpesa.NormalizePhoneNumber(*ledger.PhoneNumber)
		}
	}
	if phone == "" {
		return nil, validationError("phone number is required")
	}
	if !mpesa.IsValidMSISDN(phone) {
		return nil, validationError("phone number %q is not a valid M-Pesa number", req.PhoneNumber)
	}

	predictions := req.PredictionsCount
	if predictions == 0 {
		predictions = int(req.Amount.Div(s.cfg.AccessCost).Floor().IntPart())
	}

	payment := &domain.Payment{
		ID:                   uuid.New(),
		UserID:               userID,
		Amount:               req.Amount,
		LocalAmount:          s.converter.ToLocalUnits(req.Amount),
		Currency:             domain.CurrencyUSD,
		LocalCurrency:        domain.CurrencyKES,
		Purpose:              purpose,
		PredictionsPurchased: predictions,
		PhoneNumber:          phone,
		Status:               domain.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		log.Printf("level=error component=initiator msg=\"payment persist failed\" user_id=%s err=%v", userID, err)
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Amount:           payment.LocalAmount,
		PhoneNumber:      phone,
		CallbackURL:      s.cfg.CallbackURL,
		AccountReference: accountReferencePrefix + payment.ID.String(),
		TransactionDesc:  "Predictions purchase - " + payment.ID.String(),
	})
	if err != nil {
		s.failInitiation(ctx, payment, err.Error())
		return nil, &GatewayRequestError{Op: "stk push", Err: err}
	}
	if !resp.ResponseCode.IsSuccess() || strings.TrimSpace(resp.CheckoutRequestID) == "" {
		reason := strings.TrimSpace(resp.ResponseDescription)
		if reason == "" {
			reason = fmt.Sprintf("gateway rejected request with response code %q", resp.ResponseCode)
		}
		s.failInitiation(ctx, payment, reason)
		return nil, &GatewayRequestError{Op: "stk push", Err: errors.New(reason)}
	}

	if err := s.repo.AttachCheckoutRequestID(ctx, payment.ID, resp.CheckoutRequestID, resp.MerchantRequestID); err != nil {
		// Neither the webhook nor a poll can find this payment now. The reason keeps the
		// gateway id so an operator can match a late payment by hand.
		log.Printf("level=error component=initiator msg=\"checkout request id persist failed; manual reconciliation required\" payment_id=%s checkout_request_id=%s err=%v", payment.ID, resp.CheckoutRequestID, err)
		s.failInitiation(ctx, payment, fmt.Sprintf("%s %s", unrecordedCheckoutReason, resp.CheckoutRequestID))
		return nil, fmt.Errorf("failed to record checkout request id: %w", err)
	}

	log.Printf("level=info component=initiator msg=\"stk push accepted\" payment_id=%s user_id=%s purpose=%s amount=%s local_amount=%d checkout_request_id=%s", payment.ID, userID, purpose, payment.Amount.StringFixed(2), payment.LocalAmount, resp.CheckoutRequestID)

	return &domain.InitiatePaymentResult{
		PaymentID:         payment.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Amount:            payment.Amount,
		LocalAmount:       payment.LocalAmount,
		LocalCurrency:     payment.LocalCurrency,
		PhoneNumber:       phone,
	}, nil
}

func (s *Service) failInitiation(ctx context.Context, payment *domain.Payment, reason string) {
	log.Printf("level=warn component=initiator msg=\"stk push failed; marking payment failed\" payment_id=%s reason=%q", payment.ID, reason)
	if _, err := s.finalizePayment(ctx, payment, domain.PaymentStatusFailed, FinalizeDetails{FailureReason: reason}); err != nil {
		log.Printf("level=error component=initiator msg=\"failed to mark payment failed\" payment_id=%s err=%v", payment.ID, err)
	}
}
