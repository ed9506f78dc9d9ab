package validation

import (
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

type feeInput struct {
	BaseFee decimal.Decimal `json:"baseFee" validate:"gte=0"`
	Percent decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
	Nested  struct {
		Radius float64 `json:"radiusKm" validate:"gt=0"`
	} `json:"nested"`
}

func TestStructAcceptsValidDecimals(t *testing.T) {
	in := feeInput{BaseFee: decimal.NewFromInt(20), Percent: decimal.NewFromInt(100)}
	in.Nested.Radius = 1
	if err := Struct(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructRejectsOutOfRangeDecimal(t *testing.T) {
	in := feeInput{BaseFee: decimal.NewFromInt(-1), Percent: decimal.RequireFromString("100.01")}
	in.Nested.Radius = 1
	err := Struct(in)
	if err == nil {
		t.Fatalf("expected error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["baseFee"] == "" || details["percent"] == "" {
		t.Fatalf("missing field details %v", details)
	}
}

func TestStructReportsNestedPath(t *testing.T) {
	in := feeInput{}
	err := Struct(in)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error")
	}
	details := typed.Details().(map[string]string)
	if _, ok := details["nested.radiusKm"]; !ok {
		t.Fatalf("expected nested path, got %v", details)
	}
}
