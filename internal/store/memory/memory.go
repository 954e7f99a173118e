// Package memory is an in-memory LedgerRepository for tests and local runs
// without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finance-assistant/internal/core"
)

type data struct {
	users     map[string]core.User
	handles   map[core.ChannelHandle]string
	clients   map[string]core.Client
	invoices  map[string]core.Invoice
	items     map[string][]core.InvoiceItem
	payments  map[string]core.Payment
	expenses  map[string][]core.Expense
	sequences map[string]int64
}

func newData() *data {
	return &data{
		users:     make(map[string]core.User),
		handles:   make(map[core.ChannelHandle]string),
		clients:   make(map[string]core.Client),
		invoices:  make(map[string]core.Invoice),
		items:     make(map[string][]core.InvoiceItem),
		payments:  make(map[string]core.Payment),
		expenses:  make(map[string][]core.Expense),
		sequences: make(map[string]int64),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.handles {
		c.handles[k] = v
	}
	for k, v := range d.clients {
		c.clients[k] = v
	}
	for k, v := range d.invoices {
		c.invoices[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]core.InvoiceItem(nil), v...)
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.expenses {
		c.expenses[k] = append([]core.Expense(nil), v...)
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	return c
}

type shared struct {
	mu       sync.RWMutex
	data     *data
	defaults core.UserDefaults
	now      func() time.Time
}

// Store implements core.LedgerRepository in memory. A transaction holds the
// store's write lock for its whole duration and restores a snapshot on error.
type Store struct {
	*shared
	inTx bool
}

var _ core.LedgerRepository = (*Store)(nil)

// New returns an empty store. New users get defaults.
func New(defaults core.UserDefaults) *Store {
	return &Store{shared: &shared{data: newData(), defaults: defaults, now: time.Now}}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) WithinTx(ctx context.Context, userID string, fn func(core.LedgerRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&Store{shared: s.shared, inTx: true}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) GetOrCreateUser(_ context.Context, channel core.Channel, handle, displayName string) (*core.User, error) {
	defer s.lock()()

	key := core.ChannelHandle{Channel: channel, Handle: handle}
	if id, ok := s.data.handles[key]; ok {
		u := s.data.users[id]
		return &u, nil
	}
	u := core.NewUser(displayName, s.defaults)
	u.ID = uuid.NewString()
	u.CreatedAt = s.now()
	u.Handles = []core.ChannelHandle{key}
	s.data.users[u.ID] = u
	s.data.handles[key] = u.ID
	return &u, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*core.User, error) {
	defer s.rlock()()

	u, ok := s.data.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", core.ErrNotFound, userID)
	}
	return &u, nil
}

func (s *Store) CreateOrGetClient(_ context.Context, userID, name string) (*core.Client, error) {
	defer s.lock()()

	if _, ok := s.data.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user %s", core.ErrNotFound, userID)
	}
	for _, c := range s.data.clients {
		if c.UserID == userID && strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	c := core.Client{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: s.now()}
	s.data.clients[c.ID] = c
	return &c, nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, userID string) (string, error) {
	defer s.lock()()

	if _, ok := s.data.users[userID]; !ok {
		return "", fmt.Errorf("%w: user %s", core.ErrNotFound, userID)
	}
	last, ok := s.data.sequences[userID]
	if !ok {
		for _, inv := range s.data.invoices {
			if inv.UserID == userID {
				last++
			}
		}
	}
	last++
	s.data.sequences[userID] = last
	return core.FormatInvoiceNumber(last), nil
}

func (s *Store) CreateInvoice(_ context.Context, inv *core.Invoice) error {
	defer s.lock()()

	c, ok := s.data.clients[inv.ClientID]
	if !ok || c.UserID != inv.UserID {
		return fmt.Errorf("%w: client %s", core.ErrNotFound, inv.ClientID)
	}
	for _, existing := range s.data.invoices {
		if existing.UserID == inv.UserID && existing.Number == inv.Number {
			return fmt.Errorf("%w: %s", core.ErrDuplicateInvoiceNumber, inv.Number)
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	inv.ClientName = c.Name
	stored := *inv
	stored.Items = nil
	s.data.invoices[inv.ID] = stored
	return nil
}

func (s *Store) CreateInvoiceItem(_ context.Context, item *core.InvoiceItem) error {
	defer s.lock()()

	if _, ok := s.data.invoices[item.InvoiceID]; !ok {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, item.InvoiceID)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.data.items[item.InvoiceID] = append(s.data.items[item.InvoiceID], *item)
	return nil
}

// withItems returns a copy of inv carrying its items and client name.
func (d *data) withItems(inv core.Invoice) core.Invoice {
	inv.Items = append([]core.InvoiceItem(nil), d.items[inv.ID]...)
	if c, ok := d.clients[inv.ClientID]; ok {
		inv.ClientName = c.Name
	}
	if inv.PaidAt != nil {
		paidAt := *inv.PaidAt
		inv.PaidAt = &paidAt
	}
	return inv
}

func (s *Store) GetInvoice(_ context.Context, id, userID string) (*core.Invoice, error) {
	defer s.rlock()()

	inv, ok := s.data.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	out := s.data.withItems(inv)
	return &out, nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, userID, number string) (*core.Invoice, error) {
	defer s.rlock()()

	for _, inv := range s.data.invoices {
		if inv.UserID == userID && inv.Number == number {
			out := s.data.withItems(inv)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: invoice %s", core.ErrNotFound, number)
}

func (s *Store) ListInvoices(_ context.Context, userID string, filter core.InvoiceFilter) ([]core.Invoice, error) {
	defer s.rlock()()

	var out []core.Invoice
	for _, inv := range s.data.invoices {
		if inv.UserID != userID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, inv.Status) {
			continue
		}
		if filter.DueBefore != nil && !inv.DueDate.Before(*filter.DueBefore) {
			continue
		}
		out = append(out, s.data.withItems(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(list []core.InvoiceStatus, s core.InvoiceStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (s *Store) UpdateInvoiceStatus(_ context.Context, id, userID string, status core.InvoiceStatus, paidAt *time.Time) error {
	defer s.lock()()

	inv, ok := s.data.invoices[id]
	if !ok || inv.UserID != userID {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, id)
	}
	inv.Status = status
	if paidAt != nil {
		t := *paidAt
		inv.PaidAt = &t
	}
	s.data.invoices[id] = inv
	return nil
}

func (s *Store) CreatePayment(_ context.Context, p *core.Payment) error {
	defer s.lock()()

	if _, ok := s.data.invoices[p.InvoiceID]; !ok {
		return fmt.Errorf("%w: invoice %s", core.ErrNotFound, p.InvoiceID)
	}
	if _, exists := s.data.payments[p.InvoiceID]; exists {
		return fmt.Errorf("%w: invoice %s already has a payment", core.ErrConflict, p.InvoiceID)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.data.payments[p.InvoiceID] = *p
	return nil
}

func (s *Store) CreateExpense(_ context.Context, e *core.Expense) error {
	defer s.lock()()

	if _, ok := s.data.users[e.UserID]; !ok {
		return fmt.Errorf("%w: user %s", core.ErrNotFound, e.UserID)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.data.expenses[e.UserID] = append(s.data.expenses[e.UserID], *e)
	return nil
}

func (s *Store) QueryInvoicesPaidInRange(_ context.Context, userID string, start, end time.Time) ([]core.Invoice, error) {
	defer s.rlock()()

	r := core.DateRange{Start: start, End: end}
	var out []core.Invoice
	for _, inv := range s.data.invoices {
		if inv.UserID == userID && inv.Status == core.InvoiceStatusPaid && inv.PaidAt != nil && r.Contains(*inv.PaidAt) {
			out = append(out, s.data.withItems(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(*out[j].PaidAt) })
	return out, nil
}

func (s *Store) QueryExpensesInRange(_ context.Context, userID string, start, end time.Time) ([]core.Expense, error) {
	defer s.rlock()()

	r := core.DateRange{Start: start, End: end}
	var out []core.Expense
	for _, e := range s.data.expenses[userID] {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Payments returns the payments recorded against the user's invoices, oldest first.
func (s *Store) Payments(userID string) []core.Payment {
	defer s.rlock()()

	var out []core.Payment
	for invID, p := range s.data.payments {
		if inv, ok := s.data.invoices[invID]; ok && inv.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out
}
