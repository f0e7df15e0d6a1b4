package bootstrap

import (
	"testing"
	"time"

	"github.com/predictpro/credit-service/internal/config"
	"github.com/shopspring/decimal"
)

func TestServiceConfigMapsPricingAndTTL(t *testing.T) {
	cfg := config.Config{
		MpesaCallbackURL:         "https://api.example.com/payments/mpesa/callback",
		MpesaShortcode:           "174379",
		USDKESRate:               129.5,
		PredictionAccessCost:     0.25,
		FreePredictionsLimit:     4,
		PendingPaymentTTLMinutes: 45,
	}

	got := ServiceConfig(cfg)
	if !got.ExchangeRate.Equal(decimal.RequireFromString("129.5")) {
		t.Fatalf("unexpected rate %s", got.ExchangeRate)
	}
	if !got.AccessCost.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("unexpected access cost %s", got.AccessCost)
	}
	if got.PendingPaymentTTL != 45*time.Minute {
		t.Fatalf("unexpected ttl %s", got.PendingPaymentTTL)
	}
	if got.Shortcode != "174379" || got.CallbackURL != cfg.MpesaCallbackURL {
		t.Fatalf("unexpected gateway fields %+v", got)
	}
}

func TestValidateGatewayListsMissingSettings(t *testing.T) {
	missing := ValidateGateway(config.Config{MpesaShortcode: "174379", MpesaPasskey: "pk"})
	want := []string{"MPESA_CALLBACK_URL", "MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET"}
	if len(missing) != len(want) {
		t.Fatalf("expected %v, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, missing)
		}
	}
}
