// Package postgres implements core.LedgerRepository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"finance-assistant/internal/core"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a LedgerRepository backed by a connection pool, or by one transaction
// when obtained through WithinTx.
type Store struct {
	pool     *pgxpool.Pool
	q        querier
	inTx     bool
	defaults core.UserDefaults
}

var _ core.LedgerRepository = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, defaults core.UserDefaults) *Store {
	return &Store{pool: pool, q: pool, defaults: defaults}
}

// WithinTx runs fn in one transaction that first takes a transaction-scoped
// advisory lock on the user, so units of work for one user run one at a time.
// Nested calls reuse the open transaction.
func (s *Store) WithinTx(ctx context.Context, userID string, fn func(core.LedgerRepository) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", core.ErrTransient, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return mapError(err, "lock user "+userID)
	}

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true, defaults: s.defaults}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit transaction")
	}
	return nil
}

// mapError translates driver errors into the core taxonomy.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "invoices_user_number_key" {
				return fmt.Errorf("%w: %s", core.ErrDuplicateInvoiceNumber, what)
			}
			return fmt.Errorf("%w: %s already exists", core.ErrConflict, what)
		case "23503":
			return fmt.Errorf("%w: %s references a missing record", core.ErrNotFound, what)
		case "23514":
			return fmt.Errorf("%w: %s violates %s", core.ErrValidation, what, pgErr.ConstraintName)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s: %v", core.ErrTransient, what, err)
		}
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %s: %v", core.ErrTransient, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) GetOrCreateUser(ctx context.Context, channel core.Channel, handle, displayName string) (*core.User, error) {
	var userID string
	err := s.q.QueryRow(ctx,
		`SELECT user_id FROM channel_handles WHERE channel = $1 AND handle = $2`,
		string(channel), handle,
	).Scan(&userID)
	if err == nil {
		return s.GetUser(ctx, userID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError(err, "channel handle")
	}

	u := core.NewUser(displayName, s.defaults)
	u.ID = uuid.NewString()
	_, err = s.q.Exec(ctx, `
		INSERT INTO users (id, display_name, currency, default_vat_rate, subscription)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.DisplayName, u.Currency, u.DefaultVATRate, u.Subscription)
	if err != nil {
		return nil, mapError(err, "user")
	}

	// Two first messages from the same handle may race; the handle insert decides.
	err = s.q.QueryRow(ctx, `
		INSERT INTO channel_handles (channel, handle, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel, handle) DO NOTHING
		RETURNING user_id
	`, string(channel), handle, u.ID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, u.ID); err != nil {
			return nil, mapError(err, "user")
		}
		err = s.q.QueryRow(ctx,
			`SELECT user_id FROM channel_handles WHERE channel = $1 AND handle = $2`,
			string(channel), handle,
		).Scan(&userID)
	}
	if err != nil {
		return nil, mapError(err, "channel handle")
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var u core.User
	err := s.q.QueryRow(ctx, `
		SELECT id, display_name, business_name, currency, default_vat_rate, subscription, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.DisplayName, &u.BusinessName, &u.Currency, &u.DefaultVATRate, &u.Subscription, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err, "user "+userID)
	}

	rows, err := s.q.Query(ctx, `SELECT channel, handle FROM channel_handles WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapError(err, "channel handles")
	}
	defer rows.Close()
	for rows.Next() {
		var h core.ChannelHandle
		var ch string
		if err := rows.Scan(&ch, &h.Handle); err != nil {
			return nil, fmt.Errorf("failed to scan channel handle: %w", err)
		}
		h.Channel = core.Channel(ch)
		u.Handles = append(u.Handles, h)
	}
	return &u, rows.Err()
}

func (s *Store) CreateOrGetClient(ctx context.Context, userID, name string) (*core.Client, error) {
	var c core.Client
	err := s.q.QueryRow(ctx, `
		INSERT INTO clients (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, LOWER(name)) DO UPDATE SET name = clients.name
		RETURNING id, user_id, name, email, phone, created_at
	`, uuid.NewString(), userID, strings.TrimSpace(name)).Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "client "+name)
	}
	return &c, nil
}

// NextInvoiceNumber bumps the user's counter row. The first allocation seeds the
// counter from the number of invoices the user already has. Inside WithinTx the
// row stays locked until commit and a rollback returns the number.
func (s *Store) NextInvoiceNumber(ctx context.Context, userID string) (string, error) {
	var last int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO invoice_sequences (user_id, last_number)
		VALUES ($1, (SELECT COUNT(*) FROM invoices WHERE user_id = $1) + 1)
		ON CONFLICT (user_id) DO UPDATE SET last_number = invoice_sequences.last_number + 1
		RETURNING last_number
	`, userID).Scan(&last)
	if err != nil {
		return "", mapError(err, "invoice sequence")
	}
	return core.FormatInvoiceNumber(last), nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *core.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO invoices (id, user_id, client_id, number, currency, vat_included, vat_rate, status, due_date, paid_at)
		SELECT $1, $2, c.id, $4, $5, $6, $7, $8, $9, $10
		FROM clients c WHERE c.id = $3 AND c.user_id = $2
		RETURNING created_at, (SELECT name FROM clients WHERE id = $3)
	`, inv.ID, inv.UserID, inv.ClientID, inv.Number, inv.Currency, inv.VATIncluded, inv.VATRate,
		string(inv.Status), inv.DueDate, inv.PaidAt,
	).Scan(&inv.CreatedAt, &inv.ClientName)
	if err != nil {
		return mapError(err, "invoice "+inv.Number)
	}
	return nil
}

func (s *Store) CreateInvoiceItem(ctx context.Context, item *core.InvoiceItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.InvoiceID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal)
	return mapError(err, "invoice item")
}

const invoiceColumns = `
	i.id, i.user_id, i.client_id, c.name, i.number, i.currency, i.vat_included, i.vat_rate,
	i.status, i.due_date, i.paid_at, i.created_at`

func scanInvoice(row pgx.Row) (core.Invoice, error) {
	var inv core.Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.UserID, &inv.ClientID, &inv.ClientName, &inv.Number, &inv.Currency,
		&inv.VATIncluded, &inv.VATRate, &status, &inv.DueDate, &inv.PaidAt, &inv.CreatedAt)
	inv.Status = core.InvoiceStatus(status)
	return inv, err
}

func (s *Store) getInvoice(ctx context.Context, where string, args ...any) (*core.Invoice, error) {
	query := `SELECT` + invoiceColumns + `
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE ` + where
	if s.inTx {
		query += ` FOR UPDATE OF i`
	}
	inv, err := scanInvoice(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	invoices := []core.Invoice{inv}
	if err := s.loadItems(ctx, invoices); err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

func (s *Store) GetInvoice(ctx context.Context, id, userID string) (*core.Invoice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	inv, err := s.getInvoice(ctx, `i.id = $1 AND i.user_id = $2`, id, userID)
	if err != nil {
		return nil, mapError(err, "invoice "+id)
	}
	return inv, nil
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, userID, number string) (*core.Invoice, error) {
	inv, err := s.getInvoice(ctx, `i.user_id = $1 AND i.number = $2`, userID, number)
	if err != nil {
		return nil, mapError(err, "invoice "+number)
	}
	return inv, nil
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]core.Invoice, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "invoices")
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "invoices")
	}
	rows.Close()

	if err := s.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadItems fills Items for every invoice in one round trip.
func (s *Store) loadItems(ctx context.Context, invoices []core.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]string, len(invoices))
	index := make(map[string]int, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
		index[inv.ID] = i
	}

	rows, err := s.q.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, line_total
		FROM invoice_items WHERE invoice_id = ANY($1::uuid[])
		ORDER BY invoice_id, id
	`, ids)
	if err != nil {
		return mapError(err, "invoice items")
	}
	defer rows.Close()

	for rows.Next() {
		var it core.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return fmt.Errorf("failed to scan invoice item: %w", err)
		}
		i := index[it.InvoiceID]
		invoices[i].Items = append(invoices[i].Items, it)
	}
	return rows.Err()
}

func (s *Store) ListInvoices(ctx context.Context, userID string, filter core.InvoiceFilter) ([]core.Invoice, error) {
	query := `SELECT` + invoiceColumns + `
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE i.user_id = $1`
	args := []any{userID}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND i.status = ANY($%d)`, len(args))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		query += fmt.Sprintf(` AND i.due_date < $%d`, len(args))
	}
	query += ` ORDER BY i.created_at DESC, i.number DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return s.queryInvoices(ctx, query, args...)
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id, userID string, status core.InvoiceStatus, paidAt *time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE invoices SET status = $3, paid_at = COALESCE($4, paid_at)
		WHERE id = $1 AND user_id = $2
	`, id, userID, string(status), paidAt)
	if err != nil {
		return mapError(err, "invoice "+id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p *core.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, method, paid_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.InvoiceID, p.Amount, p.Method, p.PaidAt)
	return mapError(err, "payment for invoice "+p.InvoiceID)
}

func (s *Store) CreateExpense(ctx context.Context, e *core.Expense) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO expenses (id, user_id, description, amount, category, date, vat_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.UserID, e.Description, e.Amount, e.Category, e.Date, e.VATAmount).Scan(&e.CreatedAt)
	return mapError(err, "expense")
}

func (s *Store) QueryInvoicesPaidInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Invoice, error) {
	return s.queryInvoices(ctx, `SELECT`+invoiceColumns+`
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE i.user_id = $1 AND i.status = 'PAID' AND i.paid_at BETWEEN $2 AND $3
		ORDER BY i.paid_at
	`, userID, start, end)
}

func (s *Store) QueryExpensesInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Expense, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, description, amount, category, date, vat_amount, created_at
		FROM expenses
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, userID, start, end)
	if err != nil {
		return nil, mapError(err, "expenses")
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &e.Date, &e.VATAmount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
