package commission

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func totals() Totals {
	return Totals{Subtotal: dec("200"), Tax: dec("18"), FinalAmount: dec("240")}
}

func TestCalculatePercentageOnSubtotal(t *testing.T) {
	got := Calculate(Rule{Type: enums.CommissionTypePercentage, Value: dec("10"), Base: enums.CommissionBaseSubtotal}, totals())

	if !got.CommissionAmount.Equal(dec("20")) {
		t.Fatalf("expected 20, got %s", got.CommissionAmount)
	}
	if !got.MerchantNetEarning.Equal(dec("220")) {
		t.Fatalf("expected final - 20 = 220, got %s", got.MerchantNetEarning)
	}
}

func TestCalculateBases(t *testing.T) {
	cases := map[enums.CommissionBase]string{
		enums.CommissionBaseSubtotal:    "20",
		enums.CommissionBaseSubtotalTax: "21.8",
		enums.CommissionBaseFinalAmount: "24",
	}
	for base, want := range cases {
		got := Calculate(Rule{Type: enums.CommissionTypePercentage, Value: dec("10"), Base: base}, totals())
		if !got.CommissionAmount.Equal(dec(want)) {
			t.Fatalf("%s: expected %s, got %s", base, want, got.CommissionAmount)
		}
		if !got.MerchantNetEarning.Equal(dec("240").Sub(dec(want))) {
			t.Fatalf("%s: net must be final minus commission, got %s", base, got.MerchantNetEarning)
		}
	}
}

func TestCalculateFlatIgnoresBase(t *testing.T) {
	got := Calculate(Rule{Type: enums.CommissionTypeFlat, Value: dec("15"), Base: enums.CommissionBaseFinalAmount}, totals())
	if !got.CommissionAmount.Equal(dec("15")) || !got.MerchantNetEarning.Equal(dec("225")) {
		t.Fatalf("unexpected flat split %+v", got)
	}
	if !got.CommissionBase.Equal(dec("240")) {
		t.Fatalf("base should still be reported, got %s", got.CommissionBase)
	}
}

func TestCalculateDoesNotClampStoredValues(t *testing.T) {
	got := Calculate(Rule{Type: enums.CommissionTypePercentage, Value: dec("150"), Base: enums.CommissionBaseSubtotal}, totals())
	if !got.CommissionAmount.Equal(dec("300")) {
		t.Fatalf("expected unclamped 300, got %s", got.CommissionAmount)
	}
}
