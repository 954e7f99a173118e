package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finance-assistant/internal/core"
)

var unpaidStatuses = []core.InvoiceStatus{
	core.InvoiceStatusDraft,
	core.InvoiceStatusSent,
	core.InvoiceStatusOverdue,
}

// ledgerWindow is everything a report needs for one date range.
type ledgerWindow struct {
	user     *core.User
	rng      core.DateRange
	invoices []core.Invoice
	expenses []core.Expense
}

func (o *Operations) loadWindow(ctx context.Context, userID string, period core.Period) (*ledgerWindow, error) {
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rng, err := core.ResolvePeriod(period, o.now())
	if err != nil {
		return nil, err
	}
	invoices, err := o.repo.QueryInvoicesPaidInRange(ctx, userID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	expenses, err := o.repo.QueryExpensesInRange(ctx, userID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	return &ledgerWindow{user: user, rng: rng, invoices: invoices, expenses: expenses}, nil
}

// GenerateReport produces a summary, VAT or profit-and-loss report for a period.
func (o *Operations) GenerateReport(ctx context.Context, userID string, req GenerateReportRequest) (*Result, error) {
	if req.ReportType == "" {
		req.ReportType = ReportSummary
	}
	if req.Period == "" {
		req.Period = core.PeriodMonth
	}
	w, err := o.loadWindow(ctx, userID, req.Period)
	if err != nil {
		return nil, err
	}
	cur := w.user.Currency

	var (
		report any
		msg    string
	)
	switch req.ReportType {
	case ReportSummary:
		s, err := core.Summarize(w.invoices, w.expenses, w.rng)
		if err != nil {
			return nil, err
		}
		s = s.Rounded()
		report, msg = s, summaryText(cur, req.Period, s)
	case ReportVAT:
		v, err := core.BuildVATReport(w.invoices, w.expenses, w.rng)
		if err != nil {
			return nil, err
		}
		v = v.Rounded()
		report, msg = v, vatText(cur, req.Period, v)
	case ReportProfitLoss:
		pl, err := core.BuildProfitLoss(w.invoices, w.expenses, w.rng)
		if err != nil {
			return nil, err
		}
		pl.Summary = pl.Summary.Rounded()
		for i := range pl.ExpensesByCategory {
			pl.ExpensesByCategory[i].Total = core.Money(pl.ExpensesByCategory[i].Total)
		}
		report, msg = pl, profitLossText(cur, req.Period, pl)
	default:
		return nil, core.NewValidationError("reportType", fmt.Sprintf("I can't produce a %q report.", req.ReportType))
	}
	return ok(msg, ReportResult{ReportType: req.ReportType, Period: req.Period, Report: report}), nil
}

// FinancialSummary is revenue, expenses, net profit and margin for a period.
func (o *Operations) FinancialSummary(ctx context.Context, userID string, req PeriodRequest) (*Result, error) {
	return o.GenerateReport(ctx, userID, GenerateReportRequest{ReportType: ReportSummary, Period: req.Period})
}

// ComplianceCheck reports the VAT position for the period and flags anything
// that needs the user's attention.
func (o *Operations) ComplianceCheck(ctx context.Context, userID string, req PeriodRequest) (*Result, error) {
	if req.Period == "" {
		req.Period = core.PeriodMonth
	}
	w, err := o.loadWindow(ctx, userID, req.Period)
	if err != nil {
		return nil, err
	}
	cur := w.user.Currency
	now := w.rng.End

	vat, err := core.BuildVATReport(w.invoices, w.expenses, w.rng)
	if err != nil {
		return nil, err
	}
	vat = vat.Rounded()
	summary, err := core.Summarize(w.invoices, w.expenses, w.rng)
	if err != nil {
		return nil, err
	}

	unpaid, err := o.repo.ListInvoices(ctx, userID, core.InvoiceFilter{Statuses: unpaidStatuses, DueBefore: &now})
	if err != nil {
		return nil, err
	}
	overdue, err := core.Outstanding(unpaid, now)
	if err != nil {
		return nil, err
	}

	trailing := core.TrailingYear(now)
	yearInvoices, err := o.repo.QueryInvoicesPaidInRange(ctx, userID, trailing.Start, trailing.End)
	if err != nil {
		return nil, err
	}
	yearSummary, err := core.Summarize(yearInvoices, nil, trailing)
	if err != nil {
		return nil, err
	}

	res := ComplianceResult{
		Period:          req.Period,
		VAT:             vat,
		OverdueCount:    len(overdue),
		TrailingRevenue: core.Money(yearSummary.Revenue),
		MustRegisterVAT: yearSummary.Revenue.GreaterThan(core.VATRegistrationThreshold),
		NegativeMargin:  summary.NetProfit.IsNegative(),
		Warnings:        []string{},
	}
	switch {
	case vat.RefundDue:
		res.Warnings = append(res.Warnings, fmt.Sprintf("You are due a VAT refund of %s.", formatMoney(cur, vat.Owed.Neg())))
	case vat.Owed.IsPositive():
		res.Warnings = append(res.Warnings, fmt.Sprintf("You owe %s in VAT for this %s.", formatMoney(cur, vat.Owed), req.Period))
	}
	if res.OverdueCount > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("You have %s.", pluralize(res.OverdueCount, "overdue invoice", "overdue invoices")))
	}
	if res.MustRegisterVAT {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Your revenue over the last 12 months (%s) is above the %s VAT registration threshold.",
			formatMoney(cur, res.TrailingRevenue), formatMoney(cur, core.VATRegistrationThreshold)))
	}
	if res.NegativeMargin {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Your expenses exceed your revenue this %s.", req.Period))
	}

	msg := fmt.Sprintf("Compliance check (%s):\n%s", w.rng, vatText(cur, req.Period, vat))
	if len(res.Warnings) == 0 {
		msg += "\nEverything looks in order."
	} else {
		msg += "\n- " + strings.Join(res.Warnings, "\n- ")
	}
	return ok(msg, res), nil
}

// SetReminder prepares reminder texts for unpaid invoices. Without a reference it
// covers every past-due invoice and marks DRAFT or SENT ones OVERDUE.
func (o *Operations) SetReminder(ctx context.Context, userID string, req SetReminderRequest) (*Result, error) {
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := o.now()

	out := ReminderResult{Reminders: []Reminder{}}
	err = o.repo.WithinTx(ctx, userID, func(tx core.LedgerRepository) error {
		var (
			targets []core.Invoice
			err     error
		)
		if req.InvoiceRef != (InvoiceRef{}) {
			inv, err := findInvoice(ctx, tx, userID, req.InvoiceRef)
			if err != nil {
				return err
			}
			if !inv.Status.Unpaid() {
				return conflictf(core.ErrConflict, "Invoice %s is %s, so no reminder is needed.",
					inv.Number, strings.ToLower(string(inv.Status)))
			}
			targets = []core.Invoice{*inv}
		} else {
			targets, err = tx.ListInvoices(ctx, userID, core.InvoiceFilter{Statuses: unpaidStatuses, DueBefore: &now})
			if err != nil {
				return err
			}
		}

		for _, inv := range targets {
			totals, err := core.InvoiceTotals(inv)
			if err != nil {
				return err
			}
			if inv.PastDue(now) && inv.Status.CanTransition(core.InvoiceStatusOverdue) {
				if err := tx.UpdateInvoiceStatus(ctx, inv.ID, userID, core.InvoiceStatusOverdue, nil); err != nil {
					return err
				}
			}
			out.Reminders = append(out.Reminders, newReminder(user.Currency, inv, core.Money(totals.Total), now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out.Reminders) == 0 {
		return ok("No invoices are overdue. Nothing to remind.", out), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prepared %s:", pluralize(len(out.Reminders), "reminder", "reminders"))
	for _, r := range out.Reminders {
		b.WriteString("\n\n")
		b.WriteString(r.Text)
	}
	return ok(b.String(), out), nil
}

func newReminder(currency string, inv core.Invoice, total decimal.Decimal, now time.Time) Reminder {
	days := 0
	if inv.PastDue(now) {
		days = int(now.Sub(inv.DueDate).Hours() / 24)
	}
	var text string
	if days > 0 {
		text = fmt.Sprintf("Dear %s, invoice %s for %s was due on %s and is now %s overdue. Please arrange payment at your earliest convenience.",
			inv.ClientName, inv.Number, formatMoney(currency, total), formatDate(inv.DueDate), pluralize(days, "day", "days"))
	} else {
		text = fmt.Sprintf("Dear %s, a friendly reminder that invoice %s for %s is due on %s.",
			inv.ClientName, inv.Number, formatMoney(currency, total), formatDate(inv.DueDate))
	}
	return Reminder{
		InvoiceNumber: inv.Number,
		ClientName:    inv.ClientName,
		Total:         total,
		DueDate:       inv.DueDate,
		DaysOverdue:   days,
		Text:          text,
	}
}

func summaryText(currency string, period core.Period, s core.FinancialSummary) string {
	return fmt.Sprintf("Financial summary for this %s (%s):\nRevenue: %s\nExpenses: %s\nNet profit: %s\nMargin: %s%%",
		period, s.Range,
		formatMoney(currency, s.Revenue),
		formatMoney(currency, s.Expenses),
		formatMoney(currency, s.NetProfit),
		s.Margin.StringFixed(1))
}

func vatText(currency string, period core.Period, v core.VATReport) string {
	position := fmt.Sprintf("VAT owed: %s", formatMoney(currency, v.Owed))
	if v.RefundDue {
		position = fmt.Sprintf("VAT refund due: %s", formatMoney(currency, v.Owed.Neg()))
	}
	return fmt.Sprintf("VAT report for this %s (%s):\nVAT collected: %s\nVAT paid: %s\n%s",
		period, v.Range,
		formatMoney(currency, v.Collected),
		formatMoney(currency, v.Paid),
		position)
}

func profitLossText(currency string, period core.Period, pl core.ProfitLoss) string {
	var b strings.Builder
	b.WriteString(summaryText(currency, period, pl.Summary))
	if len(pl.ExpensesByCategory) > 0 {
		b.WriteString("\nExpenses by category:")
		for _, c := range pl.ExpensesByCategory {
			fmt.Fprintf(&b, "\n  %s: %s", c.Category, formatMoney(currency, c.Total))
		}
	}
	return b.String()
}
