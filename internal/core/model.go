package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies the messaging surface a user reached us through.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelCLI      Channel = "cli"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelWhatsApp, ChannelTelegram, ChannelCLI:
		return true
	}
	return false
}

const (
	DefaultCurrency     = "ZAR"
	SubscriptionTrial   = "TRIAL"
	SubscriptionActive  = "ACTIVE"
	SubscriptionExpired = "EXPIRED"
)

// DefaultVATRate is the South African standard rate applied when a user has not set one.
var DefaultVATRate = decimal.RequireFromString("0.15")

// ChannelHandle links a user to one identity on one channel.
type ChannelHandle struct {
	Channel Channel `json:"channel"`
	Handle  string  `json:"handle"`
}

// User is the tenant root. Everything else is owned by exactly one user.
type User struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"display_name"`
	BusinessName   string          `json:"business_name"`
	Currency       string          `json:"currency"`
	DefaultVATRate decimal.Decimal `json:"default_vat_rate"`
	Subscription   string          `json:"subscription"`
	Handles        []ChannelHandle `json:"handles,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Client is a customer of a user. Name is unique per user.
type Client struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// ParseInvoiceStatus accepts any casing of a status name.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch st := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return st, true
	}
	return "", false
}

// Unpaid reports whether money is still expected for an invoice in this status.
func (s InvoiceStatus) Unpaid() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// CanTransition reports whether an invoice may move from s to next.
// PAID and CANCELLED are terminal.
func (s InvoiceStatus) CanTransition(next InvoiceStatus) bool {
	switch next {
	case InvoiceStatusSent:
		return s == InvoiceStatusDraft
	case InvoiceStatusOverdue:
		return s == InvoiceStatusDraft || s == InvoiceStatusSent
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return s.Unpaid()
	}
	return false
}

// Invoice carries a snapshot of the VAT convention and rate in force when it was
// created. Later changes to the user's default rate never touch existing invoices.
type Invoice struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ClientID    string          `json:"client_id"`
	ClientName  string          `json:"client_name,omitempty"`
	Number      string          `json:"number"`
	Currency    string          `json:"currency"`
	VATIncluded bool            `json:"vat_included"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	Status      InvoiceStatus   `json:"status"`
	DueDate     time.Time       `json:"due_date"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []InvoiceItem   `json:"items"`
}

// PastDue reports whether an unpaid invoice's due date is before now.
func (inv Invoice) PastDue(now time.Time) bool {
	return inv.Status.Unpaid() && inv.DueDate.Before(now)
}

// InvoiceItem is one line. LineTotal is Quantity × UnitPrice in the invoice's
// own VAT convention; the invoice flag decides how it splits into net and VAT.
type InvoiceItem struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// NewInvoiceItem builds an item with its line total computed.
func NewInvoiceItem(description string, quantity int, unitPrice decimal.Decimal) InvoiceItem {
	return InvoiceItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		LineTotal:   unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

type Payment struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Expense amounts are VAT-inclusive; VATAmount is derived at logging time.
type Expense struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SuggestedExpenseCategories is offered to users and to the intent resolver.
// Categories are free-form; this list is not enforced.
var SuggestedExpenseCategories = []string{
	"Transport",
	"Office Supplies",
	"Rent",
	"Utilities",
	"Marketing",
	"Software",
	"Professional Fees",
	"Meals",
	"Equipment",
	"Other",
}

// InvoiceFilter narrows ListInvoices. Zero values mean "no constraint".
type InvoiceFilter struct {
	Statuses  []InvoiceStatus
	DueBefore *time.Time
	Limit     int
}

// UserDefaults are applied to a user created on first contact.
type UserDefaults struct {
	Currency string
	VATRate  decimal.Decimal
}

// StandardUserDefaults is ZAR at the standard VAT rate.
var StandardUserDefaults = UserDefaults{Currency: DefaultCurrency, VATRate: DefaultVATRate}

// NewUser builds a trial user with the given defaults.
func NewUser(displayName string, d UserDefaults) User {
	return User{
		DisplayName:    displayName,
		Currency:       d.Currency,
		DefaultVATRate: d.VATRate,
		Subscription:   SubscriptionTrial,
	}
}
