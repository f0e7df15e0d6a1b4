/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the credit service. By defining an interface,
 * we decouple the payment lifecycle and ledger logic from PostgreSQL, making the
 * code easier to test with in-memory stubs.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For ledger amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Ledger methods. Each mutation is a single conditional update.
	FindLedgerByUserID(ctx context.Context, userID uuid.UUID) (*domain.Ledger, error)
	GrantFreeAccess(ctx context.Context, userID uuid.UUID, freeLimit int) (*domain.Ledger, bool, error)
	DebitBalance(ctx context.Context, userID uuid.UUID, cost decimal.Decimal) (*domain.Ledger, bool, error)
	CreateAccessRecord(ctx context.Context, record *domain.AccessRecord) error
	FindAccessRecordsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AccessRecord, error)

	// Payment methods
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	FindPaymentByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error)
	FindPaymentsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error)
	FindStalePendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error)
	RecordSweepAttempt(ctx context.Context, paymentID uuid.UUID) error
	AttachCheckoutRequestID(ctx context.Context, paymentID uuid.UUID, checkoutRequestID, merchantRequestID string) error
	FinalizePayment(ctx context.Context, params FinalizePaymentParams) (*domain.Payment, bool, error)
}

// FinalizePaymentParams describes the single pending -> terminal transition of a payment.
type FinalizePaymentParams struct {
	PaymentID     uuid.UUID
	Status        string
	ReceiptNumber *string
	FailureReason *string
	PaidAmount    *decimal.Decimal
	PayerPhone    *string
	// CreditTopup credits the payment amount to the owner's balance in the same
	// transaction as the status change. Ignored unless Status is completed.
	CreditTopup bool
}
