package core

import (
	"context"
	"time"
)

// LedgerRepository is the persistent store consumed by the operation handlers.
// Every read and write is scoped by the owning user; a record owned by another
// user is reported as ErrNotFound. Every method may block.
type LedgerRepository interface {
	// GetOrCreateUser returns the user linked to (channel, handle), creating the user
	// and the link on first contact.
	GetOrCreateUser(ctx context.Context, channel Channel, handle, displayName string) (*User, error)

	// GetUser returns a user by id.
	GetUser(ctx context.Context, userID string) (*User, error)

	// CreateOrGetClient returns the user's client with this name (case-insensitive),
	// creating it if it does not exist.
	CreateOrGetClient(ctx context.Context, userID, name string) (*Client, error)

	// NextInvoiceNumber allocates the user's next invoice number. Allocation is atomic:
	// concurrent callers for the same user never receive the same number. Inside
	// WithinTx a rollback releases the number again, so sequential creation is gap-free.
	NextInvoiceNumber(ctx context.Context, userID string) (string, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	CreateInvoiceItem(ctx context.Context, item *InvoiceItem) error

	// GetInvoice returns the invoice with its items.
	GetInvoice(ctx context.Context, id, userID string) (*Invoice, error)

	// GetInvoiceByNumber returns the invoice with its items.
	GetInvoiceByNumber(ctx context.Context, userID, number string) (*Invoice, error)

	// ListInvoices returns invoices with items, newest first.
	ListInvoices(ctx context.Context, userID string, filter InvoiceFilter) ([]Invoice, error)

	// UpdateInvoiceStatus sets status, and paidAt when non-nil.
	UpdateInvoiceStatus(ctx context.Context, id, userID string, status InvoiceStatus, paidAt *time.Time) error

	// CreatePayment fails with ErrConflict if the invoice already has a payment.
	CreatePayment(ctx context.Context, p *Payment) error

	CreateExpense(ctx context.Context, e *Expense) error

	// QueryInvoicesPaidInRange returns PAID invoices (with items) whose paid_at is in [start, end].
	QueryInvoicesPaidInRange(ctx context.Context, userID string, start, end time.Time) ([]Invoice, error)

	// QueryExpensesInRange returns expenses dated in [start, end].
	QueryExpensesInRange(ctx context.Context, userID string, start, end time.Time) ([]Expense, error)

	// WithinTx runs fn against a repository bound to one atomic unit of work that is
	// serialized against every other WithinTx for the same user. If fn returns an
	// error, all of its writes are undone.
	WithinTx(ctx context.Context, userID string, fn func(repo LedgerRepository) error) error
}
