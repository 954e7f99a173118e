package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
	"finance-assistant/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	ctx   context.Context
	ops   *app.Operations
	repo  *memory.Store
	user  *core.User
	clock *clock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New(core.StandardUserDefaults)
	u, err := repo.GetOrCreateUser(ctx, core.ChannelWhatsApp, "+27820000001", "Sipho")
	require.NoError(t, err)
	c := &clock{t: time.Date(2025, time.August, 20, 10, 0, 0, 0, time.UTC)}
	return &fixture{
		ctx:   ctx,
		ops:   app.NewOperations(repo, nil, app.WithClock(c.Now)),
		repo:  repo,
		user:  u,
		clock: c,
	}
}

func (f *fixture) exec(intent ai.Intent, p map[string]any) *app.Result {
	return f.ops.Execute(f.ctx, f.user.ID, intent, p)
}

func (f *fixture) invoice(t *testing.T, amount string, vatIncluded bool) app.InvoiceResult {
	t.Helper()
	res := f.exec(ai.IntentCreateInvoice, map[string]any{
		"clientName":  "ABC Company",
		"amount":      amount,
		"description": "website design",
		"vatIncluded": fmt.Sprint(vatIncluded),
	})
	require.True(t, res.Success, res.Message)
	return res.Data.(app.InvoiceResult)
}

func TestCreateInvoice_InclusiveExample(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentCreateInvoice, map[string]any{
		"clientName":  "ABC Company",
		"amount":      "500",
		"description": "website design",
		"dueInDays":   "30",
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, app.CodeOK, res.Code)

	inv := res.Data.(app.InvoiceResult)
	assert.Equal(t, "INV-0001", inv.Number)
	assert.Equal(t, core.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "ABC Company", inv.ClientName)
	assert.True(t, inv.VATIncluded)
	assert.True(t, inv.Subtotal.Equal(d("434.78")), inv.Subtotal.String())
	assert.True(t, inv.VAT.Equal(d("65.22")), inv.VAT.String())
	assert.True(t, inv.Total.Equal(d("500")), inv.Total.String())
	assert.Equal(t, f.clock.t.AddDate(0, 0, 30), inv.DueDate)

	assert.Contains(t, res.Message, "INV-0001")
	assert.Contains(t, res.Message, "R 434.78")
	assert.Contains(t, res.Message, "R 65.22")
}

func TestCreateInvoice_DefaultsAndSequence(t *testing.T) {
	f := setup(t)

	first := f.invoice(t, "100", true)
	res := f.exec(ai.IntentCreateInvoice, map[string]any{
		"clientName":  "abc company",
		"amount":      "R1,150",
		"description": "hosting",
	})
	require.True(t, res.Success, res.Message)
	second := res.Data.(app.InvoiceResult)

	assert.Equal(t, "INV-0001", first.Number)
	assert.Equal(t, "INV-0002", second.Number)
	assert.Equal(t, "ABC Company", second.ClientName)
	assert.True(t, second.Total.Equal(d("1150")))
	assert.Equal(t, f.clock.t.AddDate(0, 0, 30), second.DueDate)
}

func TestCreateInvoice_Exclusive(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "434.78", false)
	assert.True(t, inv.Subtotal.Equal(d("434.78")))
	assert.True(t, inv.VAT.Equal(d("65.22")))
	assert.True(t, inv.Total.Equal(d("500")))
}

func TestCreateInvoice_SnapshotsUserRate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New(core.UserDefaults{Currency: "ZAR", VATRate: d("0.14")})
	u, err := repo.GetOrCreateUser(ctx, core.ChannelWeb, "old-rate", "")
	require.NoError(t, err)
	ops := app.NewOperations(repo, nil)

	res := ops.Execute(ctx, u.ID, ai.IntentCreateInvoice, map[string]any{
		"clientName": "ABC Company", "amount": "114", "description": "work",
	})
	require.True(t, res.Success, res.Message)
	inv := res.Data.(app.InvoiceResult)
	assert.True(t, inv.VATRate.Equal(d("0.14")))
	assert.True(t, inv.Subtotal.Equal(d("100")))
}

func TestCreateInvoice_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		message string
	}{
		{
			name:    "missing client",
			params:  map[string]any{"amount": "500", "description": "website design"},
			message: "Please tell me the client name.",
		},
		{
			name:    "negative amount",
			params:  map[string]any{"clientName": "ABC", "amount": "-5", "description": "x"},
			message: "The amount must be greater than 0.",
		},
		{
			name:    "missing amount",
			params:  map[string]any{"clientName": "ABC", "description": "x"},
			message: "The amount must be greater than 0.",
		},
		{
			name:    "amount not a number",
			params:  map[string]any{"clientName": "ABC", "amount": "five hundred", "description": "x"},
			message: `The amount "five hundred" is not a number.`,
		},
		{
			name:    "sub-cent amount",
			params:  map[string]any{"clientName": "ABC", "amount": "0.004", "description": "x"},
			message: "The amount can have at most 2 decimal places.",
		},
		{
			name:    "comma list amount",
			params:  map[string]any{"clientName": "ABC", "amount": "1,2,3", "description": "x"},
			message: `The amount "1,2,3" is not a number.`,
		},
		{
			name:    "zero due days",
			params:  map[string]any{"clientName": "ABC", "amount": "5", "description": "x", "dueInDays": "0"},
			message: "The number of days until payment is due must be greater than 0.",
		},
		{
			name:    "missing description",
			params:  map[string]any{"clientName": "ABC", "amount": "5"},
			message: "Please tell me the description.",
		},
		{
			name:    "unknown parameter",
			params:  map[string]any{"clientName": "ABC", "amount": "5", "description": "x", "colour": "red"},
			message: `I don't understand the detail "colour".`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			res := f.exec(ai.IntentCreateInvoice, tt.params)
			assert.False(t, res.Success)
			assert.Equal(t, app.CodeValidation, res.Code)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestLogExpense_Example(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentLogExpense, map[string]any{
		"amount":      "450",
		"description": "transport fuel",
		"category":    "Transport",
	})
	require.True(t, res.Success, res.Message)
	e := res.Data.(app.ExpenseResult)
	assert.True(t, e.Amount.Equal(d("450")))
	assert.True(t, e.VATAmount.Equal(d("58.70")), e.VATAmount.String())
	assert.Equal(t, "Transport", e.Category)
	assert.Equal(t, f.clock.t, e.Date)
	assert.Contains(t, res.Message, "R 58.70")

	stored, err := f.repo.QueryExpensesInRange(f.ctx, f.user.ID, f.clock.t.Add(-time.Minute), f.clock.t)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Amount.Equal(d("450")))
}

func TestLogExpense_DefaultsAndDate(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentLogExpense, map[string]any{"amount": "115", "description": "stationery", "date": "2025-08-01"})
	require.True(t, res.Success, res.Message)
	e := res.Data.(app.ExpenseResult)
	assert.Equal(t, "Other", e.Category)
	assert.Equal(t, time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC), e.Date)
	assert.True(t, e.VATAmount.Equal(d("15")))

	res = f.exec(ai.IntentLogExpense, map[string]any{"amount": "115", "description": "x", "date": "last tuesday"})
	assert.Equal(t, app.CodeValidation, res.Code)
}

func TestLogExpense_DecimalComma(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentLogExpense, map[string]any{"amount": "450,50", "description": "fuel"})
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Data.(app.ExpenseResult).Amount.Equal(d("450.50")))

	res = f.exec(ai.IntentLogExpense, map[string]any{"amount": "1 250,50", "description": "laptop"})
	require.True(t, res.Success, res.Message)
	assert.True(t, res.Data.(app.ExpenseResult).Amount.Equal(d("1250.50")))
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentLogExpense, map[string]any{"amount": "0.004", "description": "fuel"})
	assert.Equal(t, app.CodeValidation, res.Code)
	stored, err := f.repo.QueryExpensesInRange(f.ctx, f.user.ID, f.clock.t.Add(-24*time.Hour), f.clock.t)
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, err = f.ops.CreateInvoice(f.ctx, f.user.ID, app.CreateInvoiceRequest{
		ClientName: "ABC Company", Amount: d("0.004"), Description: "x", DueInDays: 30, VATIncluded: true,
	})
	assert.True(t, core.IsValidation(err))

	inv := f.invoice(t, "10", true)
	assert.Equal(t, "INV-0001", inv.Number)
}

func TestMarkInvoicePaid_OnlyOnce(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "434.78", false)

	res := f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "inv 1", "status": "paid", "method": "EFT"})
	require.True(t, res.Success, res.Message)
	p := res.Data.(app.PaymentResult)
	assert.Equal(t, inv.ID, p.InvoiceID)
	assert.True(t, p.Amount.Equal(d("500")), p.Amount.String())
	assert.Equal(t, "EFT", p.Method)
	assert.Equal(t, f.clock.t, p.PaidAt)

	again := f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "PAID"})
	assert.False(t, again.Success)
	assert.Equal(t, app.CodeAlreadyPaid, again.Code)
	assert.Equal(t, "Invoice INV-0001 is already marked as paid.", again.Message)

	assert.Len(t, f.repo.Payments(f.user.ID), 1)

	stored, err := f.repo.GetInvoice(f.ctx, inv.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, core.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestMarkInvoicePaid_ByTypedCall(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "500", true)

	res, err := f.ops.MarkInvoicePaid(f.ctx, f.user.ID, app.MarkInvoicePaidRequest{InvoiceRef: app.InvoiceRef{InvoiceID: inv.ID}})
	require.NoError(t, err)
	assert.Equal(t, "unspecified", res.Data.(app.PaymentResult).Method)

	_, err = f.ops.MarkInvoicePaid(f.ctx, f.user.ID, app.MarkInvoicePaidRequest{InvoiceRef: app.InvoiceRef{InvoiceID: inv.ID}})
	assert.ErrorIs(t, err, core.ErrAlreadyPaid)
}

func TestMarkInvoicePaid_NotFoundAndIsolation(t *testing.T) {
	f := setup(t)
	f.invoice(t, "500", true)

	res := f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0042", "status": "PAID"})
	assert.Equal(t, app.CodeNotFound, res.Code)
	assert.Equal(t, "I couldn't find invoice INV-0042.", res.Message)

	other, err := f.repo.GetOrCreateUser(f.ctx, core.ChannelTelegram, "99", "Thandi")
	require.NoError(t, err)
	res = f.ops.Execute(f.ctx, other.ID, ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "PAID"})
	assert.Equal(t, app.CodeNotFound, res.Code)
	assert.Empty(t, f.repo.Payments(f.user.ID))

	res = f.exec(ai.IntentUpdateInvoice, map[string]any{"status": "PAID"})
	assert.Equal(t, app.CodeValidation, res.Code)
}

func TestUpdateInvoice_Transitions(t *testing.T) {
	f := setup(t)
	f.invoice(t, "500", true)

	res := f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "sent"})
	require.True(t, res.Success, res.Message)
	change := res.Data.(app.StatusChangeResult)
	assert.Equal(t, core.InvoiceStatusDraft, change.From)
	assert.Equal(t, core.InvoiceStatusSent, change.To)

	res = f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "draft"})
	assert.Equal(t, app.CodeConflict, res.Code)

	res = f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "cancelled"})
	require.True(t, res.Success, res.Message)

	res = f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "paid"})
	assert.Equal(t, app.CodeConflict, res.Code)
	assert.Equal(t, "Invoice INV-0001 is cancelled and can't be marked as paid.", res.Message)

	res = f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "archived"})
	assert.Equal(t, app.CodeValidation, res.Code)
}

func TestListInvoices(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentListInvoices, nil)
	require.True(t, res.Success)
	assert.Equal(t, "You have no invoices yet.", res.Message)

	f.invoice(t, "500", true)
	f.invoice(t, "200", true)
	f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0002", "status": "paid"})

	res = f.exec(ai.IntentListInvoices, map[string]any{"status": "draft"})
	require.True(t, res.Success)
	list := res.Data.(app.InvoiceListResult)
	require.Len(t, list.Invoices, 1)
	assert.Equal(t, "INV-0001", list.Invoices[0].Number)

	res = f.exec(ai.IntentListInvoices, map[string]any{"limit": "1"})
	assert.Len(t, res.Data.(app.InvoiceListResult).Invoices, 1)

	res = f.exec(ai.IntentListInvoices, map[string]any{"limit": "500"})
	assert.Equal(t, app.CodeValidation, res.Code)
}

func TestGenerateReport_SummaryExample(t *testing.T) {
	f := setup(t)
	f.invoice(t, "434.78", false)
	require.True(t, f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "PAID"}).Success)
	require.True(t, f.exec(ai.IntentLogExpense, map[string]any{"amount": "450", "description": "transport fuel", "category": "Transport"}).Success)

	res := f.exec(ai.IntentGenerateReport, map[string]any{"reportType": "summary", "period": "month"})
	require.True(t, res.Success, res.Message)
	rr := res.Data.(app.ReportResult)
	s := rr.Report.(core.FinancialSummary)
	assert.True(t, s.Revenue.Equal(d("434.78")), s.Revenue.String())
	assert.True(t, s.Expenses.Equal(d("450")))
	assert.True(t, s.NetProfit.Equal(d("-15.22")), s.NetProfit.String())
	assert.True(t, s.Margin.Equal(d("-3.5")), s.Margin.String())
	assert.Contains(t, res.Message, "-R 15.22")

	res = f.exec(ai.IntentGenerateReport, map[string]any{"reportType": "vat", "period": "quarter"})
	require.True(t, res.Success, res.Message)
	v := res.Data.(app.ReportResult).Report.(core.VATReport)
	assert.True(t, v.Collected.Equal(d("65.22")), v.Collected.String())
	assert.True(t, v.Paid.Equal(d("58.70")))
	assert.True(t, v.Owed.Equal(d("6.52")), v.Owed.String())
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), v.Range.Start)

	res = f.exec(ai.IntentGenerateReport, map[string]any{"reportType": "profit and loss", "period": "year"})
	require.True(t, res.Success, res.Message)
	pl := res.Data.(app.ReportResult).Report.(core.ProfitLoss)
	require.Len(t, pl.ExpensesByCategory, 1)
	assert.Equal(t, "Transport", pl.ExpensesByCategory[0].Category)
	assert.NotNil(t, pl.RevenueByMonth)
	assert.Empty(t, pl.RevenueByMonth)

	res = f.exec(ai.IntentGenerateReport, map[string]any{"reportType": "balance sheet"})
	assert.Equal(t, app.CodeValidation, res.Code)
}

func TestFinancialSummary_EmptyPeriodHasZeroMargin(t *testing.T) {
	f := setup(t)
	require.True(t, f.exec(ai.IntentLogExpense, map[string]any{"amount": "100", "description": "rent"}).Success)

	res := f.exec(ai.IntentFinancialSummary, nil)
	require.True(t, res.Success, res.Message)
	s := res.Data.(app.ReportResult).Report.(core.FinancialSummary)
	assert.True(t, s.Revenue.IsZero())
	assert.True(t, s.Margin.IsZero())
}

func TestComplianceCheck(t *testing.T) {
	f := setup(t)
	f.invoice(t, "434.78", false)
	require.True(t, f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "PAID"}).Success)
	require.True(t, f.exec(ai.IntentLogExpense, map[string]any{"amount": "450", "description": "transport fuel"}).Success)

	res := f.exec(ai.IntentComplianceCheck, map[string]any{"period": "month"})
	require.True(t, res.Success, res.Message)
	c := res.Data.(app.ComplianceResult)
	assert.True(t, c.VAT.Owed.Equal(d("6.52")))
	assert.False(t, c.MustRegisterVAT)
	assert.True(t, c.NegativeMargin)
	assert.Contains(t, c.Warnings, "You owe R 6.52 in VAT for this month.")
	assert.Contains(t, c.Warnings, "Your expenses exceed your revenue this month.")
}

func TestSetReminder_MarksOverdue(t *testing.T) {
	f := setup(t)
	res := f.exec(ai.IntentCreateInvoice, map[string]any{
		"clientName": "ABC Company", "amount": "500", "description": "website design", "dueInDays": "5",
	})
	require.True(t, res.Success, res.Message)

	res = f.exec(ai.IntentSetReminder, nil)
	require.True(t, res.Success)
	assert.Empty(t, res.Data.(app.ReminderResult).Reminders)

	f.clock.t = f.clock.t.AddDate(0, 0, 10)
	res = f.exec(ai.IntentSetReminder, nil)
	require.True(t, res.Success, res.Message)
	reminders := res.Data.(app.ReminderResult).Reminders
	require.Len(t, reminders, 1)
	assert.Equal(t, "INV-0001", reminders[0].InvoiceNumber)
	assert.Equal(t, 5, reminders[0].DaysOverdue)
	assert.Contains(t, reminders[0].Text, "5 days overdue")

	overdue := f.exec(ai.IntentListInvoices, map[string]any{"status": "overdue"})
	assert.Len(t, overdue.Data.(app.InvoiceListResult).Invoices, 1)
}

func TestSetReminder_PaidInvoice(t *testing.T) {
	f := setup(t)
	f.invoice(t, "500", true)
	require.True(t, f.exec(ai.IntentUpdateInvoice, map[string]any{"invoiceNumber": "INV-0001", "status": "PAID"}).Success)

	res := f.exec(ai.IntentSetReminder, map[string]any{"invoiceNumber": "INV-0001"})
	assert.Equal(t, app.CodeConflict, res.Code)
}

func TestGreetingAndHelp(t *testing.T) {
	f := setup(t)

	res := f.exec(ai.IntentGreeting, map[string]any{"anything": "ignored"})
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "Hi Sipho!")

	res = f.exec(ai.IntentHelp, nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "Create an invoice")
}

// faultyRepo makes GetUser misbehave.
type faultyRepo struct {
	core.LedgerRepository
	err   error
	panic bool
}

func (r faultyRepo) GetUser(ctx context.Context, userID string) (*core.User, error) {
	if r.panic {
		panic("nil pointer somewhere")
	}
	return nil, r.err
}

func TestExecute_NeverFails(t *testing.T) {
	base := memory.New(core.StandardUserDefaults)
	tests := []struct {
		name string
		repo core.LedgerRepository
		code app.ResultCode
	}{
		{"transient", faultyRepo{LedgerRepository: base, err: fmt.Errorf("get user: %w", core.ErrTransient)}, app.CodeTransient},
		{"internal", faultyRepo{LedgerRepository: base, err: fmt.Errorf("scan: column \"secret_table\" missing")}, app.CodeInternal},
		{"panic", faultyRepo{LedgerRepository: base, panic: true}, app.CodeInternal},
		{"unknown user", base, app.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := app.NewOperations(tt.repo, nil)
			res := ops.Execute(context.Background(), "u-1", ai.IntentLogExpense, map[string]any{"amount": "10", "description": "x"})
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.Code)
			assert.NotEmpty(t, res.Message)
			assert.NotContains(t, res.Message, "secret_table")
			assert.NotContains(t, res.Message, "nil pointer")
		})
	}
}

func TestExecute_UnknownIntent(t *testing.T) {
	f := setup(t)
	res := f.exec(ai.Intent("TRANSFER_FUNDS"), nil)
	assert.Equal(t, app.CodeValidation, res.Code)
}
