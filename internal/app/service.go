/**
 * @description
 * This file contains the core business logic for the credit service. The `Service`
 * struct orchestrates the M-Pesa payment lifecycle (initiation, callback, status poll,
 * cancellation, expiry sweep) and owns the Credit Ledger used to unlock predictions.
 *
 * Key features:
 * - Every payment outcome, whatever its source, goes through one idempotent finalizer.
 * - Ledger effects happen only on the call that performs the pending -> terminal transition.
 * - Publishes payment lifecycle events to RabbitMQ for downstream consumers.
 *
 * @dependencies
 * - github.com/shopspring/decimal: For USD amounts.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/mpesa, pkg/rabbitmq: For gateway and broker communication.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/predictpro/credit-service/pkg/mpesa"
	"github.com/predictpro/credit-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const (
	DefaultFreePredictionsLimit = 4
	DefaultPendingPaymentTTL    = 30 * time.Minute
	historyLimit                = 50
	eventPublishTimeout         = 5 * time.Second
)

var (
	DefaultAccessCost = decimal.RequireFromString("0.1")

	// maximumAmount caps a single payment well inside the NUMERIC(12,2) amount column.
	maximumAmount = decimal.NewFromInt(10000)

	minimumAmounts = map[string]decimal.Decimal{
		domain.PurposePredictionAccess: decimal.RequireFromString("0.1"),
		domain.PurposeBalanceTopup:     decimal.RequireFromString("1.0"),
	}
)

// PaymentGateway is the subset of the M-Pesa client the service needs.
type PaymentGateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
}

// RateLimitDecision is the limiter's answer for a single request.
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter enforces a per-user request quota for a scope inside a window.
type RateLimiter interface {
	Allow(ctx context.Context, scope string, userID string, quota int, window time.Duration) (RateLimitDecision, error)
}

// ServiceConfig holds the tunables of the payment and ledger flows.
type ServiceConfig struct {
	CallbackURL                   string
	CallbackToken                 string
	ExchangeRate                  decimal.Decimal
	AccessCost                    decimal.Decimal
	FreePredictionsLimit          int
	PendingPaymentTTL             time.Duration
	InitiateRateLimitPerMinute    int
	StatusQueryRateLimitPerMinute int
	BusinessName                  string
	BusinessPhone                 string
	Shortcode                     string
}

// Service provides the core business logic for payments and credits.
type Service struct {
	repo          store.Repository
	gateway       PaymentGateway
	eventProducer rabbitmq.Publisher
	ledger        *Ledger
	converter     CurrencyConverter
	cfg           ServiceConfig
	rateLimiter   RateLimiter
	now           func() time.Time
}

// NewService creates a new credit service instance.
func NewService(repo store.Repository, gateway PaymentGateway, producer rabbitmq.Publisher, cfg ServiceConfig) *Service {
	if !cfg.AccessCost.IsPositive() {
		cfg.AccessCost = DefaultAccessCost
	}
	if cfg.FreePredictionsLimit < 0 {
		cfg.FreePredictionsLimit = DefaultFreePredictionsLimit
	}
	if cfg.PendingPaymentTTL <= 0 {
		cfg.PendingPaymentTTL = DefaultPendingPaymentTTL
	}
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		ledger:        NewLedger(repo, cfg.FreePredictionsLimit),
		converter:     NewCurrencyConverter(cfg.ExchangeRate),
		cfg:           cfg,
		now:           time.Now,
	}
}

// SetRateLimiter enables per-user throttling of initiation and status polls.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// Ledger exposes the credit ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// AccessCost is the price of one paid prediction unlock.
func (s *Service) AccessCost() decimal.Decimal {
	return s.cfg.AccessCost
}

// GetPayment returns a payment owned by userID.
func (s *Service) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, store.ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentHistory returns the user's most recent payments.
func (s *Service) GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return s.repo.FindPaymentsByUserID(ctx, userID, historyLimit)
}

// PaymentInstructions describes the M-Pesa flow with the live pricing.
func (s *Service) PaymentInstructions() domain.PaymentInstructions {
	return domain.PaymentInstructions{
		Method:        "mpesa_stk_push",
		BusinessName:  s.cfg.BusinessName,
		BusinessPhone: s.cfg.BusinessPhone,
		Shortcode:     s.cfg.Shortcode,
		ExchangeRate:  s.converter.Rate(),
		Currency:      domain.CurrencyUSD,
		LocalCurrency: domain.CurrencyKES,
		MinimumAmount: minimumAmounts[domain.PurposePredictionAccess],
		AccessCost:    s.cfg.AccessCost,
		Steps: []string{
			"Enter the amount in USD and your M-Pesa phone number.",
			"Confirm the payment prompt that appears on your phone.",
			"Enter your M-Pesa PIN to authorize the payment.",
			"Your balance is credited as soon as M-Pesa confirms the payment.",
		},
	}
}

// checkRateLimit fails open when the limiter itself errors.
func (s *Service) checkRateLimit(ctx context.Context, scope string, subject uuid.UUID, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	decision, err := s.rateLimiter.Allow(ctx, scope, subject.String(), limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=rate_limiter msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if !decision.Allowed {
		log.Printf("level=info component=rate_limiter msg=\"request throttled\" scope=%s user_id=%s reset_in=%s", scope, subject, decision.ResetIn)
		return &RateLimitError{RetryAfterSeconds: retryAfterSeconds(decision.ResetIn)}
	}
	return nil
}

func (s *Service) publishPaymentEvent(ctx context.Context, payment *domain.Payment, credited *decimal.Decimal) {
	event := domain.PaymentEvent{
		EventType:   domain.PaymentEventRoutingKey(payment.Status),
		PaymentID:   payment.ID,
		UserID:      payment.UserID,
		Status:      payment.Status,
		Purpose:     payment.Purpose,
		Amount:      payment.Amount,
		LocalAmount: payment.LocalAmount,
		Credited:    credited,
		OccurredAt:  s.now().UTC(),
	}
	if payment.CheckoutRequestID != nil {
		event.CheckoutRequestID = *payment.CheckoutRequestID
	}
	if payment.ReceiptNumber != nil {
		event.ReceiptNumber = *payment.ReceiptNumber
	}
	if payment.FailureReason != nil {
		event.FailureReason = *payment.FailureReason
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.eventProducer.PublishPaymentEvent(publishCtx, event); err != nil {
		log.Printf("level=warn component=finalizer msg=\"payment event publish failed\" payment_id=%s status=%s err=%v", payment.ID, payment.Status, err)
	}
}

// retryAfterSeconds rounds up so clients never retry before the window resets.
func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
