package app

import (
	"time"

	"github.com/shopspring/decimal"

	"finance-assistant/internal/core"
)

// ResultCode classifies the outcome of an operation.
type ResultCode string

const (
	CodeOK          ResultCode = "OK"
	CodeValidation  ResultCode = "VALIDATION_ERROR"
	CodeNotFound    ResultCode = "NOT_FOUND"
	CodeAlreadyPaid ResultCode = "ALREADY_PAID"
	CodeConflict    ResultCode = "CONFLICT"
	CodeTransient   ResultCode = "TRY_AGAIN"
	CodeInternal    ResultCode = "INTERNAL_ERROR"
)

// Result is returned by every operation. Message is always safe to show a user.
type Result struct {
	Success bool       `json:"success"`
	Code    ResultCode `json:"code"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
}

func ok(message string, data any) *Result {
	return &Result{Success: true, Code: CodeOK, Message: message, Data: data}
}

// InvoiceResult describes one invoice with totals recomputed from its items.
type InvoiceResult struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	ClientName  string             `json:"client_name"`
	Status      core.InvoiceStatus `json:"status"`
	Currency    string             `json:"currency"`
	VATIncluded bool               `json:"vat_included"`
	VATRate     decimal.Decimal    `json:"vat_rate"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	VAT         decimal.Decimal    `json:"vat"`
	Total       decimal.Decimal    `json:"total"`
	DueDate     time.Time          `json:"due_date"`
	PaidAt      *time.Time         `json:"paid_at,omitempty"`
}

func newInvoiceResult(inv core.Invoice) (InvoiceResult, error) {
	totals, err := core.InvoiceTotals(inv)
	if err != nil {
		return InvoiceResult{}, err
	}
	totals = totals.Rounded()
	return InvoiceResult{
		ID:          inv.ID,
		Number:      inv.Number,
		ClientName:  inv.ClientName,
		Status:      inv.Status,
		Currency:    inv.Currency,
		VATIncluded: inv.VATIncluded,
		VATRate:     inv.VATRate,
		Subtotal:    totals.Subtotal,
		VAT:         totals.VAT,
		Total:       totals.Total,
		DueDate:     inv.DueDate,
		PaidAt:      inv.PaidAt,
	}, nil
}

// InvoiceListResult is returned by ListInvoices.
type InvoiceListResult struct {
	Invoices []InvoiceResult `json:"invoices"`
}

// ExpenseResult is returned by LogExpense.
type ExpenseResult struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Date        time.Time       `json:"date"`
}

// PaymentResult is returned by MarkInvoicePaid.
type PaymentResult struct {
	PaymentID     string          `json:"payment_id"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	PaidAt        time.Time       `json:"paid_at"`
}

// StatusChangeResult is returned by UpdateInvoice for non-payment transitions.
type StatusChangeResult struct {
	InvoiceID     string             `json:"invoice_id"`
	InvoiceNumber string             `json:"invoice_number"`
	From          core.InvoiceStatus `json:"from"`
	To            core.InvoiceStatus `json:"to"`
}

// ReportResult wraps one of core.FinancialSummary, core.VATReport or core.ProfitLoss.
type ReportResult struct {
	ReportType ReportType  `json:"report_type"`
	Period     core.Period `json:"period"`
	Report     any         `json:"report"`
}

// ComplianceResult is returned by ComplianceCheck.
type ComplianceResult struct {
	Period          core.Period     `json:"period"`
	VAT             core.VATReport  `json:"vat"`
	OverdueCount    int             `json:"overdue_count"`
	TrailingRevenue decimal.Decimal `json:"trailing_revenue"`
	MustRegisterVAT bool            `json:"must_register_vat"`
	NegativeMargin  bool            `json:"negative_margin"`
	Warnings        []string        `json:"warnings"`
}

// Reminder is one reminder text for an unpaid invoice.
type Reminder struct {
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	Total         decimal.Decimal `json:"total"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
	Text          string          `json:"text"`
}

// ReminderResult is returned by SetReminder.
type ReminderResult struct {
	Reminders []Reminder `json:"reminders"`
}
