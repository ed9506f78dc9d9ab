package commission

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/courier-dispatch/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Rule is the computed part of a CommissionSetting.
type Rule struct {
	Type  enums.CommissionType
	Value decimal.Decimal
	Base  enums.CommissionBase
}

// Totals are the order amounts a commission can be based on.
type Totals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	FinalAmount decimal.Decimal
}

// Split is the commission result for one order.
type Split struct {
	CommissionBase     decimal.Decimal
	CommissionAmount   decimal.Decimal
	MerchantNetEarning decimal.Decimal
}

// BaseAmount selects the amount the rule applies to.
func BaseAmount(base enums.CommissionBase, t Totals) decimal.Decimal {
	switch base {
	case enums.CommissionBaseSubtotalTax:
		return t.Subtotal.Add(t.Tax)
	case enums.CommissionBaseFinalAmount:
		return t.FinalAmount
	default:
		return t.Subtotal
	}
}

// Calculate applies rule to the order totals. Values are used as stored;
// range checks belong to the setting write path.
func Calculate(rule Rule, t Totals) Split {
	base := BaseAmount(rule.Base, t)
	amount := rule.Value
	if rule.Type == enums.CommissionTypePercentage {
		amount = base.Mul(rule.Value).Div(hundred)
	}
	return Split{
		CommissionBase:     base,
		CommissionAmount:   amount,
		MerchantNetEarning: t.FinalAmount.Sub(amount),
	}
}
