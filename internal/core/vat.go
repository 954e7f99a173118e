package core

import (
	"github.com/shopspring/decimal"
)

// VATSplit is an amount broken into its net subtotal, VAT portion and gross total.
// Values keep full precision; round with Money at the display boundary.
type VATSplit struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

// Add sums two splits component-wise.
func (s VATSplit) Add(o VATSplit) VATSplit {
	return VATSplit{
		Subtotal: s.Subtotal.Add(o.Subtotal),
		VAT:      s.VAT.Add(o.VAT),
		Total:    s.Total.Add(o.Total),
	}
}

// Rounded returns the split rounded to cents.
func (s VATSplit) Rounded() VATSplit {
	return VATSplit{Subtotal: Money(s.Subtotal), VAT: Money(s.VAT), Total: Money(s.Total)}
}

// SplitInclusive splits an amount that already contains VAT:
// subtotal = amount / (1 + rate), vat = amount - subtotal.
func SplitInclusive(amount, rate decimal.Decimal) VATSplit {
	subtotal := amount.Div(decimal.NewFromInt(1).Add(rate))
	return VATSplit{
		Subtotal: subtotal,
		VAT:      amount.Sub(subtotal),
		Total:    amount,
	}
}

// SplitExclusive adds VAT on top of a net amount:
// vat = amount × rate, total = amount + vat.
func SplitExclusive(amount, rate decimal.Decimal) VATSplit {
	vat := amount.Mul(rate)
	return VATSplit{
		Subtotal: amount,
		VAT:      vat,
		Total:    amount.Add(vat),
	}
}

// SplitVAT dispatches on the explicit per-record convention flag. The convention
// is never inferred from the amount.
func SplitVAT(amount, rate decimal.Decimal, vatIncluded bool) VATSplit {
	if vatIncluded {
		return SplitInclusive(amount, rate)
	}
	return SplitExclusive(amount, rate)
}

// ExpenseVAT is the VAT contained in an expense amount. Expenses are always logged
// as the all-in amount paid, so this is the inclusive split.
func ExpenseVAT(amount, rate decimal.Decimal) decimal.Decimal {
	return SplitInclusive(amount, rate).VAT
}

// ValidVATRate reports whether rate lies in [0, 1).
func ValidVATRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThan(decimal.NewFromInt(1))
}

// Money rounds to the two decimal places shown to users and stored for payments.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
