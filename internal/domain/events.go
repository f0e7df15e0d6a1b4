package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEvent is published once per applied payment transition.
type PaymentEvent struct {
	EventType         string           `json:"event_type"`
	PaymentID         uuid.UUID        `json:"payment_id"`
	UserID            uuid.UUID        `json:"user_id"`
	Status            string           `json:"status"`
	Purpose           string           `json:"purpose"`
	Amount            decimal.Decimal  `json:"amount"`
	LocalAmount       int64            `json:"local_amount"`
	CheckoutRequestID string           `json:"checkout_request_id,omitempty"`
	ReceiptNumber     string           `json:"receipt_number,omitempty"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	Credited          *decimal.Decimal `json:"credited,omitempty"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

// PaymentEventRoutingKey returns the topic routing key for a terminal status.
func PaymentEventRoutingKey(status string) string {
	return "payment." + status
}
