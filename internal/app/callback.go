package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"

	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/predictpro/credit-service/pkg/mpesa"
	"github.com/shopspring/decimal"
)

const (
	ackCodeAccepted = 0
	ackCodeRejected = 1
)

// HandleCallback processes an STK webhook body and returns the acknowledgement for the
// gateway. It never returns an error: every outcome is expressed in the ack so the
// transport can always answer 200.
func (s *Service) HandleCallback(ctx context.Context, body []byte, token string) domain.CallbackAck {
	if s.cfg.CallbackToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CallbackToken)) != 1 {
		log.Printf("level=warn component=callback msg=\"callback rejected; token mismatch\"")
		return rejectAck("Unauthorized callback")
	}

	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		log.Printf("level=warn component=callback msg=\"malformed callback\" err=%v body_bytes=%d", err, len(body))
		return rejectAck("Invalid callback data")
	}

	log.Printf("level=info component=callback msg=\"callback received\" checkout_request_id=%s result_code=%s result_desc=%q", cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc)

	outcome := domain.PaymentStatusFailed
	details := FinalizeDetails{FailureReason: cb.ResultDesc}
	if cb.ResultCode.IsSuccess() {
		outcome = domain.PaymentStatusCompleted
		details = callbackSuccessDetails(cb)
	}

	result, err := s.Finalize(ctx, cb.CheckoutRequestID, outcome, details)
	switch {
	case errors.Is(err, store.ErrPaymentNotFound):
		log.Printf("level=warn component=callback msg=\"callback for unknown payment\" checkout_request_id=%s", cb.CheckoutRequestID)
		return rejectAck("Payment not found")
	case err != nil:
		log.Printf("level=error component=callback msg=\"callback processing failed\" checkout_request_id=%s err=%v", cb.CheckoutRequestID, err)
		return rejectAck("Callback processing failed")
	}

	if outcome == domain.PaymentStatusFailed {
		desc := cb.ResultDesc
		if desc == "" {
			desc = "Failed"
		}
		return rejectAck(desc)
	}
	if result.AlreadyFinalized {
		if result.Payment.Status == domain.PaymentStatusCompleted {
			return domain.CallbackAck{ResultCode: ackCodeAccepted, ResultDesc: "Already processed"}
		}
		return rejectAck("Payment already " + result.Payment.Status)
	}
	return domain.CallbackAck{ResultCode: ackCodeAccepted, ResultDesc: "Success"}
}

// callbackSuccessDetails pulls the receipt fields out of the metadata. Missing items
// leave the matching field empty.
func callbackSuccessDetails(cb *mpesa.STKCallback) FinalizeDetails {
	var details FinalizeDetails
	if receipt, ok := cb.MetadataValue(mpesa.MetadataReceiptNumber); ok {
		details.ReceiptNumber = receipt
	}
	if phone, ok := cb.MetadataValue(mpesa.MetadataPhoneNumber); ok {
		details.PayerPhone = phone
	}
	if raw, ok := cb.MetadataValue(mpesa.MetadataAmount); ok {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			log.Printf("level=warn component=callback msg=\"unparseable paid amount in metadata\" checkout_request_id=%s value=%q", cb.CheckoutRequestID, raw)
		} else {
			details.PaidAmount = &amount
		}
	}
	return details
}

func rejectAck(desc string) domain.CallbackAck {
	return domain.CallbackAck{ResultCode: ackCodeRejected, ResultDesc: desc}
}
