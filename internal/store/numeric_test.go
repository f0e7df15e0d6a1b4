package store

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestNumericRoundTripKeepsScale(t *testing.T) {
	for _, raw := range []string{"0", "0.1", "1.00", "12.35", "1000000.01"} {
		want := decimal.RequireFromString(raw)
		got := fromNumeric(toNumeric(want))
		if !got.Equal(want) {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestFromNumericInvalidIsZero(t *testing.T) {
	if got := fromNumeric(pgtype.Numeric{}); !got.IsZero() {
		t.Fatalf("expected zero for NULL numeric, got %s", got)
	}
	if got := fromNullableNumeric(pgtype.Numeric{}); got != nil {
		t.Fatalf("expected nil for NULL numeric, got %s", got)
	}
}

func TestToNullableNumeric(t *testing.T) {
	if n := toNullableNumeric(nil); n.Valid {
		t.Fatal("expected invalid numeric for nil decimal")
	}
	amount := decimal.RequireFromString("115")
	if n := toNullableNumeric(&amount); !n.Valid {
		t.Fatal("expected valid numeric")
	}
}
