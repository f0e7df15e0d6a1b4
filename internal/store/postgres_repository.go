/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Ledger mutations are single conditional UPDATE statements so concurrent requests
 * can never push a balance negative or grant more than the free allowance. Payment
 * finalization is a compare-and-set on `status = 'pending'` that also applies the
 * top-up credit in the same database transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: For ledger amounts.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrCheckoutRequestIDConflict = errors.New("checkout request id already assigned")
	ErrPaymentNotPending         = errors.New("payment is not pending")
)

//go:embed schema.sql
var Schema string

const paymentColumns = `
	id, user_id, amount, local_amount, currency, local_currency, purpose,
	predictions_purchased, phone_number, status, checkout_request_id,
	merchant_request_id, receipt_number, failure_reason, paid_amount, payer_phone,
	completed_at, created_at, updated_at`

const ledgerColumns = `id, phone_number, balance, free_predictions_used, total_predictions_accessed`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ApplySchema creates or upgrades the tables the service owns.
func (r *PostgresRepository) ApplySchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, Schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (*domain.Ledger, error) {
	var (
		ledger  domain.Ledger
		balance pgtype.Numeric
	)
	if err := row.Scan(
		&ledger.UserID,
		&ledger.PhoneNumber,
		&balance,
		&ledger.FreePredictionsUsed,
		&ledger.TotalPredictionsAccessed,
	); err != nil {
		return nil, err
	}
	ledger.Balance = fromNumeric(balance)
	return &ledger, nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p          domain.Payment
		amount     pgtype.Numeric
		paidAmount pgtype.Numeric
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&amount,
		&p.LocalAmount,
		&p.Currency,
		&p.LocalCurrency,
		&p.Purpose,
		&p.PredictionsPurchased,
		&p.PhoneNumber,
		&p.Status,
		&p.CheckoutRequestID,
		&p.MerchantRequestID,
		&p.ReceiptNumber,
		&p.FailureReason,
		&paidAmount,
		&p.PayerPhone,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Amount = fromNumeric(amount)
	p.PaidAmount = fromNullableNumeric(paidAmount)
	return &p, nil
}

// FindLedgerByUserID returns the credit state of a user.
func (r *PostgresRepository) FindLedgerByUserID(ctx context.Context, userID uuid.UUID) (*domain.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM users WHERE id = $1`
	ledger, err := scanLedger(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return ledger, nil
}

// GrantFreeAccess consumes one free prediction if the user is still under freeLimit.
// The returned bool is false when the allowance is exhausted.
func (r *PostgresRepository) GrantFreeAccess(ctx context.Context, userID uuid.UUID, freeLimit int) (*domain.Ledger, bool, error) {
	query := `
		UPDATE users
		SET free_predictions_used = free_predictions_used + 1,
		    total_predictions_accessed = total_predictions_accessed + 1,
		    updated_at = NOW()
		WHERE id = $1 AND free_predictions_used < $2
		RETURNING ` + ledgerColumns
	ledger, err := scanLedger(r.db.QueryRow(ctx, query, userID, freeLimit))
	if err == nil {
		return ledger, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	current, err := r.FindLedgerByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// DebitBalance subtracts cost from the balance only when the balance covers it.
// The returned bool is false when funds are insufficient; the balance is untouched.
func (r *PostgresRepository) DebitBalance(ctx context.Context, userID uuid.UUID, cost decimal.Decimal) (*domain.Ledger, bool, error) {
	query := `
		UPDATE users
		SET balance = balance - $2,
		    total_predictions_accessed = total_predictions_accessed + 1,
		    updated_at = NOW()
		WHERE id = $1 AND balance >= $2
		RETURNING ` + ledgerColumns
	ledger, err := scanLedger(r.db.QueryRow(ctx, query, userID, toNumeric(cost)))
	if err == nil {
		return ledger, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	current, err := r.FindLedgerByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// CreateAccessRecord stores the audit row for an unlocked prediction.
func (r *PostgresRepository) CreateAccessRecord(ctx context.Context, record *domain.AccessRecord) error {
	query := `
		INSERT INTO prediction_accesses (id, user_id, kind, identifier, is_free, cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING accessed_at
	`
	return r.db.QueryRow(ctx, query,
		record.ID,
		record.UserID,
		record.Kind,
		record.Identifier,
		record.IsFree,
		toNumeric(record.Cost),
	).Scan(&record.AccessedAt)
}

// FindAccessRecordsByUserID returns the most recent unlocks of a user, newest first.
func (r *PostgresRepository) FindAccessRecordsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AccessRecord, error) {
	query := `
		SELECT id, user_id, kind, identifier, is_free, cost, accessed_at
		FROM prediction_accesses
		WHERE user_id = $1
		ORDER BY accessed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.AccessRecord, 0)
	for rows.Next() {
		var (
			rec  domain.AccessRecord
			cost pgtype.Numeric
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.Identifier, &rec.IsFree, &cost, &rec.AccessedAt); err != nil {
			return nil, err
		}
		rec.Cost = fromNumeric(cost)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreatePayment inserts a new pending payment.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id,
			user_id,
			amount,
			local_amount,
			currency,
			local_currency,
			purpose,
			predictions_purchased,
			phone_number,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		payment.ID,
		payment.UserID,
		toNumeric(payment.Amount),
		payment.LocalAmount,
		payment.Currency,
		payment.LocalCurrency,
		payment.Purpose,
		payment.PredictionsPurchased,
		payment.PhoneNumber,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func (r *PostgresRepository) FindPaymentByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_request_id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, checkoutRequestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// FindPaymentsByUserID returns the user's most recent payments, newest first.
func (r *PostgresRepository) FindPaymentsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryPayments(ctx, query, userID, limit)
}

// FindStalePendingPayments returns pending payments created before createdBefore.
// Payments the sweeper has looked at least recently come first, so a batch the
// gateway cannot answer for does not hide the payments behind it.
func (r *PostgresRepository) FindStalePendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY updated_at ASC, created_at ASC
		LIMIT $2
	`
	return r.queryPayments(ctx, query, createdBefore, limit)
}

// RecordSweepAttempt bumps updated_at on a payment the sweeper had to leave pending,
// moving it behind the rest of the stale backlog.
func (r *PostgresRepository) RecordSweepAttempt(ctx context.Context, paymentID uuid.UUID) error {
	query := `UPDATE payments SET updated_at = NOW() WHERE id = $1 AND status = 'pending'`
	if _, err := r.db.Exec(ctx, query, paymentID); err != nil {
		return fmt.Errorf("failed to record sweep attempt: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// AttachCheckoutRequestID stores the gateway correlation id. It is assigned at most once
// and only while the payment is still pending.
func (r *PostgresRepository) AttachCheckoutRequestID(ctx context.Context, paymentID uuid.UUID, checkoutRequestID, merchantRequestID string) error {
	query := `
		UPDATE payments
		SET checkout_request_id = $2, merchant_request_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND checkout_request_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, paymentID, checkoutRequestID, merchantRequestID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCheckoutRequestIDConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := r.FindPaymentByID(ctx, paymentID); findErr != nil {
			return findErr
		}
		return ErrPaymentNotPending
	}
	return nil
}

// FinalizePayment moves a pending payment to a terminal status. The bool reports whether
// this call performed the transition; when false the current record is returned unchanged.
func (r *PostgresRepository) FinalizePayment(ctx context.Context, params FinalizePaymentParams) (*domain.Payment, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE payments
		SET status = $2,
		    receipt_number = $3,
		    failure_reason = $4,
		    paid_amount = $5,
		    payer_phone = $6,
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	payment, err := scanPayment(tx.QueryRow(ctx, query,
		params.PaymentID,
		params.Status,
		params.ReceiptNumber,
		params.FailureReason,
		toNullableNumeric(params.PaidAmount),
		params.PayerPhone,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
		current, findErr := r.FindPaymentByID(ctx, params.PaymentID)
		if findErr != nil {
			return nil, false, findErr
		}
		return current, false, nil
	}

	if params.CreditTopup && params.Status == domain.PaymentStatusCompleted {
		tag, err := tx.Exec(ctx,
			"UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1",
			payment.UserID, toNumeric(payment.Amount),
		)
		if err != nil {
			return nil, false, fmt.Errorf("credit top-up: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, false, ErrUserNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return payment, true, nil
}
