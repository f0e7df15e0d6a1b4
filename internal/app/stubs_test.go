package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/predictpro/credit-service/pkg/mpesa"
	"github.com/shopspring/decimal"
)

// memoryRepo mirrors the conditional-update semantics of the Postgres repository.
type memoryRepo struct {
	store.Repository

	mu       sync.Mutex
	ledgers  map[uuid.UUID]*domain.Ledger
	payments map[uuid.UUID]*domain.Payment
	accesses []domain.AccessRecord

	createPaymentErr error
	attachErr        error
	finalizeCalls    int
	creditCalls      int
	sweepAttempts    int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledgers:  map[uuid.UUID]*domain.Ledger{},
		payments: map[uuid.UUID]*domain.Payment{},
	}
}

func (r *memoryRepo) addUser(balance string, phone string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	ledger := &domain.Ledger{UserID: id, Balance: decimal.RequireFromString(balance)}
	if phone != "" {
		ledger.PhoneNumber = &phone
	}
	r.ledgers[id] = ledger
	return id
}

func (r *memoryRepo) ledger(userID uuid.UUID) domain.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.ledgers[userID]
}

func (r *memoryRepo) payment(paymentID uuid.UUID) domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.payments[paymentID]
}

func (r *memoryRepo) onlyPayment() *domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		copied := *p
		return &copied
	}
	return nil
}

func (r *memoryRepo) paymentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

func (r *memoryRepo) FindLedgerByUserID(ctx context.Context, userID uuid.UUID) (*domain.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ledger, ok := r.ledgers[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *ledger
	return &copied, nil
}

func (r *memoryRepo) GrantFreeAccess(ctx context.Context, userID uuid.UUID, freeLimit int) (*domain.Ledger, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ledger, ok := r.ledgers[userID]
	if !ok {
		return nil, false, store.ErrUserNotFound
	}
	if ledger.FreePredictionsUsed >= freeLimit {
		copied := *ledger
		return &copied, false, nil
	}
	ledger.FreePredictionsUsed++
	ledger.TotalPredictionsAccessed++
	copied := *ledger
	return &copied, true, nil
}

func (r *memoryRepo) DebitBalance(ctx context.Context, userID uuid.UUID, cost decimal.Decimal) (*domain.Ledger, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ledger, ok := r.ledgers[userID]
	if !ok {
		return nil, false, store.ErrUserNotFound
	}
	if ledger.Balance.LessThan(cost) {
		copied := *ledger
		return &copied, false, nil
	}
	ledger.Balance = ledger.Balance.Sub(cost)
	ledger.TotalPredictionsAccessed++
	copied := *ledger
	return &copied, true, nil
}

func (r *memoryRepo) CreateAccessRecord(ctx context.Context, record *domain.AccessRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.AccessedAt = time.Now()
	r.accesses = append(r.accesses, *record)
	return nil
}

func (r *memoryRepo) FindAccessRecordsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AccessRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AccessRecord
	for i := len(r.accesses) - 1; i >= 0 && len(out) < limit; i-- {
		if r.accesses[i].UserID == userID {
			out = append(out, r.accesses[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if r.createPaymentErr != nil {
		return r.createPaymentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	copied := *payment
	r.payments[payment.ID] = &copied
	return nil
}

func (r *memoryRepo) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *memoryRepo) FindPaymentByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range r.payments {
		if payment.CheckoutRequestID != nil && *payment.CheckoutRequestID == checkoutRequestID {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, store.ErrPaymentNotFound
}

func (r *memoryRepo) FindPaymentsByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, payment := range r.payments {
		if payment.UserID == userID {
			out = append(out, *payment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) FindStalePendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, payment := range r.payments {
		if payment.Status == domain.PaymentStatusPending && payment.CreatedAt.Before(createdBefore) {
			out = append(out, *payment)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) RecordSweepAttempt(ctx context.Context, paymentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepAttempts++
	if payment, ok := r.payments[paymentID]; ok && payment.Status == domain.PaymentStatusPending {
		payment.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memoryRepo) AttachCheckoutRequestID(ctx context.Context, paymentID uuid.UUID, checkoutRequestID, merchantRequestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return r.attachErr
	}
	payment, ok := r.payments[paymentID]
	if !ok {
		return store.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending || payment.CheckoutRequestID != nil {
		return store.ErrPaymentNotPending
	}
	payment.CheckoutRequestID = &checkoutRequestID
	payment.MerchantRequestID = &merchantRequestID
	return nil
}

func (r *memoryRepo) FinalizePayment(ctx context.Context, params store.FinalizePaymentParams) (*domain.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizeCalls++
	payment, ok := r.payments[params.PaymentID]
	if !ok {
		return nil, false, store.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		copied := *payment
		return &copied, false, nil
	}

	payment.Status = params.Status
	payment.ReceiptNumber = params.ReceiptNumber
	payment.FailureReason = params.FailureReason
	payment.PaidAmount = params.PaidAmount
	payment.PayerPhone = params.PayerPhone
	if params.Status == domain.PaymentStatusCompleted {
		now := time.Now()
		payment.CompletedAt = &now
		if params.CreditTopup {
			ledger, ok := r.ledgers[payment.UserID]
			if !ok {
				return nil, false, store.ErrUserNotFound
			}
			ledger.Balance = ledger.Balance.Add(payment.Amount)
			r.creditCalls++
		}
	}
	copied := *payment
	return &copied, true, nil
}

// backdate moves a payment's creation and last update time into the past.
func (r *memoryRepo) backdate(paymentID uuid.UUID, age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := time.Now().Add(-age)
	r.payments[paymentID].CreatedAt = at
	r.payments[paymentID].UpdatedAt = at
}

type gatewayStub struct {
	mu sync.Mutex

	pushResp *mpesa.STKPushResponse
	pushErr  error
	pushReqs []mpesa.STKPushRequest

	queryResp  *mpesa.STKQueryResponse
	queryErr   error
	queryCalls int32
}

func (g *gatewayStub) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushReqs = append(g.pushReqs, req)
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	return g.pushResp, nil
}

func (g *gatewayStub) STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error) {
	atomic.AddInt32(&g.queryCalls, 1)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	resp := *g.queryResp
	resp.CheckoutRequestID = checkoutRequestID
	return &resp, nil
}

func (g *gatewayStub) pushCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushReqs)
}

func acceptedPush(checkoutRequestID string) *mpesa.STKPushResponse {
	return &mpesa.STKPushResponse{
		MerchantRequestID:   "29115-34620561-1",
		CheckoutRequestID:   checkoutRequestID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}
}

type publisherStub struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *publisherStub) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type rateLimiterStub struct {
	decision RateLimitDecision
	err      error
}

func (r *rateLimiterStub) Allow(ctx context.Context, scope string, userID string, quota int, window time.Duration) (RateLimitDecision, error) {
	return r.decision, r.err
}

var errGatewayDown = errors.New("connection refused")

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		CallbackURL:          "https://api.example.com/payments/mpesa/callback",
		ExchangeRate:         decimal.NewFromInt(115),
		AccessCost:           decimal.RequireFromString("0.1"),
		FreePredictionsLimit: DefaultFreePredictionsLimit,
		PendingPaymentTTL:    30 * time.Minute,
		BusinessName:         "PredictPro",
		Shortcode:            "174379",
	}
}

func newTestService(repo *memoryRepo, gateway *gatewayStub) (*Service, *publisherStub) {
	publisher := &publisherStub{}
	return NewService(repo, gateway, publisher, testServiceConfig()), publisher
}

// pendingPayment seeds a payment that already carries checkoutRequestID.
func (r *memoryRepo) pendingPayment(userID uuid.UUID, purpose, amount, checkoutRequestID string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	payment := &domain.Payment{
		ID:            id,
		UserID:        userID,
		Amount:        decimal.RequireFromString(amount),
		LocalAmount:   decimal.RequireFromString(amount).Mul(decimal.NewFromInt(115)).Ceil().IntPart(),
		Currency:      domain.CurrencyUSD,
		LocalCurrency: domain.CurrencyKES,
		Purpose:       purpose,
		PhoneNumber:   "254712345678",
		Status:        domain.PaymentStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if checkoutRequestID != "" {
		payment.CheckoutRequestID = &checkoutRequestID
	}
	r.payments[id] = payment
	return id
}
