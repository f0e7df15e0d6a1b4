package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/predictpro/credit-service/internal/domain"
	"github.com/shopspring/decimal"
)

func successCallbackBody(checkoutRequestID string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 575.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`, checkoutRequestID))
}

func failedCallbackBody(checkoutRequestID string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`, checkoutRequestID))
}

func TestHandleCallback_SuccessCompletesTopup(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser("0", "")
	paymentID := repo.pendingPayment(userID, domain.PurposeBalanceTopup, "5.00", "ws_CO_cb")
	svc, _ := newTestService(repo, &gatewayStub{})

	ack := svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_cb"), "")
	if ack.ResultCode != 0 || ack.ResultDesc != "Success" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	stored := repo.payment(paymentID)
	if stored.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.ReceiptNumber == nil || *stored.ReceiptNumber != "NLJ7RT61SV" {
		t.Fatalf("expected receipt, got %v", stored.ReceiptNumber)
	}
	if stored.PayerPhone == nil || *stored.PayerPhone != "254708374149" {
		t.Fatalf("expected payer phone, got %v", stored.PayerPhone)
	}
	if stored.PaidAmount == nil || !stored.PaidAmount.Equal(decimal.NewFromInt(575)) {
		t.Fatalf("expected paid amount 575, got %v", stored.PaidAmount)
	}
	if balance := repo.ledger(userID).Balance; !balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected balance 5.00, got %s", balance)
	}
}

func TestHandleCallback_DuplicateDeliveryIsAcknowledgedWithoutEffect(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser("0", "")
	repo.pendingPayment(userID, domain.PurposeBalanceTopup, "5.00", "ws_CO_dup")
	svc, publisher := newTestService(repo, &gatewayStub{})

	svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_dup"), "")
	ack := svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_dup"), "")
	if ack.ResultCode != 0 || ack.ResultDesc != "Already processed" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if balance := repo.ledger(userID).Balance; !balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected single credit, got balance %s", balance)
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one event, got %d", publisher.count())
	}
}

func TestHandleCallback_FailureMarksFailedAndLeavesLedger(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser("2.00", "")
	paymentID := repo.pendingPayment(userID, domain.PurposeBalanceTopup, "5.00", "ws_CO_fail")
	svc, _ := newTestService(repo, &gatewayStub{})

	ack := svc.HandleCallback(context.Background(), failedCallbackBody("ws_CO_fail"), "")
	if ack.ResultCode != 1 || ack.ResultDesc != "Request cancelled by user" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	stored := repo.payment(paymentID)
	if stored.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "Request cancelled by user" {
		t.Fatalf("expected failure reason, got %v", stored.FailureReason)
	}
	if balance := repo.ledger(userID).Balance; !balance.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("ledger must be untouched, got %s", balance)
	}
}

func TestHandleCallback_SuccessAfterFailureIsNotApplied(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser("0", "")
	repo.pendingPayment(userID, domain.PurposeBalanceTopup, "5.00", "ws_CO_late")
	svc, _ := newTestService(repo, &gatewayStub{})

	svc.HandleCallback(context.Background(), failedCallbackBody("ws_CO_late"), "")
	ack := svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_late"), "")
	if ack.ResultCode != 1 {
		t.Fatalf("expected rejection ack, got %+v", ack)
	}
	if !repo.ledger(userID).Balance.IsZero() {
		t.Fatalf("ledger must be untouched")
	}
}

func TestHandleCallback_MalformedAndUnknown(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		desc string
	}{
		{name: "not json", body: []byte(`<xml/>`), desc: "Invalid callback data"},
		{name: "missing checkout id", body: []byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`), desc: "Invalid callback data"},
		{name: "missing envelope", body: []byte(`{}`), desc: "Invalid callback data"},
		{name: "unknown payment", body: successCallbackBody("ws_CO_nobody"), desc: "Payment not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo()
			svc, _ := newTestService(repo, &gatewayStub{})

			ack := svc.HandleCallback(context.Background(), tc.body, "")
			if ack.ResultCode != 1 || ack.ResultDesc != tc.desc {
				t.Fatalf("unexpected ack %+v", ack)
			}
			if repo.finalizeCalls != 0 {
				t.Fatalf("no state change expected")
			}
		})
	}
}

func TestHandleCallback_RequiresConfiguredToken(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser("0", "")
	paymentID := repo.pendingPayment(userID, domain.PurposeBalanceTopup, "5.00", "ws_CO_tok")
	svc, _ := newTestService(repo, &gatewayStub{})
	svc.cfg.CallbackToken = "s3cret"

	ack := svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_tok"), "wrong")
	if ack.ResultCode != 1 {
		t.Fatalf("expected rejection, got %+v", ack)
	}
	if repo.payment(paymentID).Status != domain.PaymentStatusPending {
		t.Fatalf("payment must stay pending")
	}

	ack = svc.HandleCallback(context.Background(), successCallbackBody("ws_CO_tok"), "s3cret")
	if ack.ResultCode != 0 {
		t.Fatalf("expected success, got %+v", ack)
	}
}
