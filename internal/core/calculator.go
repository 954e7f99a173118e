package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Everything in this file is pure: no I/O, no clock. All report numbers are
// reproducible from the records passed in. Aggregates keep full precision;
// callers round with Money (or the Rounded helpers) when presenting.

var hundred = decimal.NewFromInt(100)

// VATRegistrationThreshold is the trailing 12-month taxable turnover above which
// registration for VAT is compulsory (South Africa).
var VATRegistrationThreshold = decimal.NewFromInt(1_000_000)

// InvoiceTotals sums the line totals and splits the sum using the invoice's own
// VAT snapshot, never the owner's current default.
func InvoiceTotals(inv Invoice) (VATSplit, error) {
	if len(inv.Items) == 0 {
		return VATSplit{}, fmt.Errorf("%w: invoice %s has no line items", ErrInternal, inv.Number)
	}
	sum := decimal.Zero
	for _, it := range inv.Items {
		sum = sum.Add(it.LineTotal)
	}
	return SplitVAT(sum, inv.VATRate, inv.VATIncluded), nil
}

// FinancialSummary is revenue against expenses for one window.
type FinancialSummary struct {
	Range        DateRange       `json:"range"`
	Revenue      decimal.Decimal `json:"revenue"`
	Expenses     decimal.Decimal `json:"expenses"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	Margin       decimal.Decimal `json:"margin"`
	InvoiceCount int             `json:"invoice_count"`
	ExpenseCount int             `json:"expense_count"`
}

// Rounded returns a copy with money rounded to cents and margin to two places.
func (s FinancialSummary) Rounded() FinancialSummary {
	s.Revenue = Money(s.Revenue)
	s.Expenses = Money(s.Expenses)
	s.NetProfit = Money(s.NetProfit)
	s.Margin = s.Margin.Round(2)
	return s
}

// paidWithin reports whether inv counts as revenue for r.
func paidWithin(inv Invoice, r DateRange) bool {
	return inv.Status == InvoiceStatusPaid && inv.PaidAt != nil && r.Contains(*inv.PaidAt)
}

// Margin is net / revenue × 100, and exactly zero when revenue is zero.
func Margin(net, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return net.Div(revenue).Mul(hundred)
}

// Summarize computes revenue (net of VAT) from invoices PAID within r and
// expenses from expenses dated within r. Records outside r are ignored.
func Summarize(invoices []Invoice, expenses []Expense, r DateRange) (FinancialSummary, error) {
	s := FinancialSummary{Range: r, Revenue: decimal.Zero, Expenses: decimal.Zero}
	for _, inv := range invoices {
		if !paidWithin(inv, r) {
			continue
		}
		totals, err := InvoiceTotals(inv)
		if err != nil {
			return FinancialSummary{}, err
		}
		s.Revenue = s.Revenue.Add(totals.Subtotal)
		s.InvoiceCount++
	}
	for _, e := range expenses {
		if !r.Contains(e.Date) {
			continue
		}
		s.Expenses = s.Expenses.Add(e.Amount)
		s.ExpenseCount++
	}
	s.NetProfit = s.Revenue.Sub(s.Expenses)
	s.Margin = Margin(s.NetProfit, s.Revenue)
	return s, nil
}

// VATReport compares VAT charged on paid invoices with VAT paid on expenses.
// A negative Owed means a refund is due.
type VATReport struct {
	Range     DateRange       `json:"range"`
	Collected decimal.Decimal `json:"collected"`
	Paid      decimal.Decimal `json:"paid"`
	Owed      decimal.Decimal `json:"owed"`
	RefundDue bool            `json:"refund_due"`
}

func (v VATReport) Rounded() VATReport {
	v.Collected = Money(v.Collected)
	v.Paid = Money(v.Paid)
	v.Owed = Money(v.Owed)
	return v
}

// BuildVATReport honours each invoice's own VAT flag and snapshot rate, and
// uses each expense's precomputed VATAmount.
func BuildVATReport(invoices []Invoice, expenses []Expense, r DateRange) (VATReport, error) {
	v := VATReport{Range: r, Collected: decimal.Zero, Paid: decimal.Zero}
	for _, inv := range invoices {
		if !paidWithin(inv, r) {
			continue
		}
		totals, err := InvoiceTotals(inv)
		if err != nil {
			return VATReport{}, err
		}
		v.Collected = v.Collected.Add(totals.VAT)
	}
	for _, e := range expenses {
		if r.Contains(e.Date) {
			v.Paid = v.Paid.Add(e.VATAmount)
		}
	}
	v.Owed = v.Collected.Sub(v.Paid)
	v.RefundDue = v.Owed.IsNegative()
	return v, nil
}

// CategoryTotal is the expense sum for one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// MonthTotal is revenue for one calendar month.
type MonthTotal struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ProfitLoss is the summary plus the expense breakdown by category.
// RevenueByMonth is not computed yet and is always empty.
type ProfitLoss struct {
	Summary            FinancialSummary `json:"summary"`
	ExpensesByCategory []CategoryTotal  `json:"expenses_by_category"`
	RevenueByMonth     []MonthTotal     `json:"revenue_by_month"`
}

// BuildProfitLoss groups expenses by category (blank category counts as "Other"),
// sorted by category name.
func BuildProfitLoss(invoices []Invoice, expenses []Expense, r DateRange) (ProfitLoss, error) {
	summary, err := Summarize(invoices, expenses, r)
	if err != nil {
		return ProfitLoss{}, err
	}
	byCat := make(map[string]*CategoryTotal)
	for _, e := range expenses {
		if !r.Contains(e.Date) {
			continue
		}
		cat := e.Category
		if cat == "" {
			cat = "Other"
		}
		ct, ok := byCat[cat]
		if !ok {
			ct = &CategoryTotal{Category: cat, Total: decimal.Zero}
			byCat[cat] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
	}
	cats := make([]CategoryTotal, 0, len(byCat))
	for _, ct := range byCat {
		cats = append(cats, *ct)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Category < cats[j].Category })

	// TODO: fill RevenueByMonth by grouping paid invoices on the PaidAt month.
	return ProfitLoss{
		Summary:            summary,
		ExpensesByCategory: cats,
		RevenueByMonth:     []MonthTotal{},
	}, nil
}

// OutstandingInvoice is an unpaid invoice with its recomputed total.
type OutstandingInvoice struct {
	Invoice     Invoice         `json:"invoice"`
	Total       decimal.Decimal `json:"total"`
	DaysOverdue int             `json:"days_overdue"`
}

// Outstanding returns unpaid invoices that are past due at now, oldest due date first.
func Outstanding(invoices []Invoice, now time.Time) ([]OutstandingInvoice, error) {
	var out []OutstandingInvoice
	for _, inv := range invoices {
		if !inv.PastDue(now) {
			continue
		}
		totals, err := InvoiceTotals(inv)
		if err != nil {
			return nil, err
		}
		out = append(out, OutstandingInvoice{
			Invoice:     inv,
			Total:       totals.Total,
			DaysOverdue: int(now.Sub(inv.DueDate).Hours() / 24),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Invoice.DueDate.Before(out[j].Invoice.DueDate) })
	return out, nil
}
