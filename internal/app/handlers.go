package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/core"
	"finance-assistant/internal/logger"
)

// numberAttempts bounds how often CreateInvoice re-allocates a number after a
// duplicate-number race.
const numberAttempts = 3

const defaultPaymentMethod = "unspecified"

// Operations holds one handler per intent. Typed handlers return the raw error;
// Execute converts every outcome, panics included, into a Result.
type Operations struct {
	repo     core.LedgerRepository
	validate *validator.Validate
	now      func() time.Time
	log      *zap.Logger
}

// OperationsOption customises Operations.
type OperationsOption func(*Operations)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) OperationsOption {
	return func(o *Operations) { o.now = now }
}

// NewOperations wires the handlers to a ledger repository.
func NewOperations(repo core.LedgerRepository, log *zap.Logger, opts ...OperationsOption) *Operations {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Operations{
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the handler for intent and never fails: validation problems,
// missing records, infrastructure errors and panics all become a Result with
// Success false and a message safe to show the user.
func (o *Operations) Execute(ctx context.Context, userID string, intent ai.Intent, raw map[string]any) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("operation panicked",
				zap.String("intent", string(intent)),
				zap.String("user_id", userID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = failure(core.ErrInternal)
		}
	}()

	res, err := o.Run(ctx, userID, intent, raw)
	if err != nil {
		o.logFailure(ctx, intent, userID, err)
		return failure(err)
	}
	return res
}

// Run decodes raw into the intent's request type and calls its handler.
func (o *Operations) Run(ctx context.Context, userID string, intent ai.Intent, raw map[string]any) (*Result, error) {
	if intentUsesParams(intent) {
		if err := checkKeys(raw); err != nil {
			return nil, err
		}
	}
	p := params(raw)
	loc := o.now().Location()

	switch intent {
	case ai.IntentCreateInvoice:
		req, err := decodeCreateInvoice(p)
		if err != nil {
			return nil, err
		}
		return o.CreateInvoice(ctx, userID, req)
	case ai.IntentLogExpense:
		req, err := decodeLogExpense(p, loc)
		if err != nil {
			return nil, err
		}
		return o.LogExpense(ctx, userID, req)
	case ai.IntentListInvoices:
		req, err := decodeListInvoices(p)
		if err != nil {
			return nil, err
		}
		return o.ListInvoices(ctx, userID, req)
	case ai.IntentUpdateInvoice:
		req, err := decodeUpdateInvoice(p)
		if err != nil {
			return nil, err
		}
		return o.UpdateInvoice(ctx, userID, req)
	case ai.IntentGenerateReport:
		req, err := decodeGenerateReport(p)
		if err != nil {
			return nil, err
		}
		return o.GenerateReport(ctx, userID, req)
	case ai.IntentFinancialSummary:
		req, err := decodePeriod(p)
		if err != nil {
			return nil, err
		}
		return o.FinancialSummary(ctx, userID, req)
	case ai.IntentComplianceCheck:
		req, err := decodePeriod(p)
		if err != nil {
			return nil, err
		}
		return o.ComplianceCheck(ctx, userID, req)
	case ai.IntentSetReminder:
		req, err := decodeSetReminder(p)
		if err != nil {
			return nil, err
		}
		return o.SetReminder(ctx, userID, req)
	case ai.IntentGreeting:
		return o.Greeting(ctx, userID)
	case ai.IntentHelp:
		return o.Help(), nil
	}
	return nil, core.NewValidationError("intent", fmt.Sprintf("I can't handle %q requests.", intent))
}

func (o *Operations) logFailure(ctx context.Context, intent ai.Intent, userID string, err error) {
	log := logger.FromContext(ctx, o.log)
	fields := []zap.Field{zap.String("intent", string(intent)), zap.String("user_id", userID), zap.Error(err)}
	switch {
	case core.IsValidation(err), core.IsNotFound(err), core.IsConflict(err):
		log.Info("operation rejected", fields...)
	case core.IsTransient(err):
		log.Warn("operation failed, transient", fields...)
	default:
		log.Error("operation failed", fields...)
	}
}

// CreateInvoice creates a DRAFT invoice with a single line for the named client,
// creating the client on first use. The invoice snapshots the user's VAT rate.
func (o *Operations) CreateInvoice(ctx context.Context, userID string, req CreateInvoiceRequest) (*Result, error) {
	if err := validateStruct(o.validate, req); err != nil {
		return nil, err
	}
	if err := checkAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var inv *core.Invoice
	for attempt := 1; ; attempt++ {
		inv, err = o.createInvoiceTx(ctx, user, req)
		if !errors.Is(err, core.ErrDuplicateInvoiceNumber) || attempt == numberAttempts {
			break
		}
		o.log.Warn("invoice number race, retrying", zap.String("user_id", userID), zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}

	ir, err := newInvoiceResult(*inv)
	if err != nil {
		return nil, err
	}
	vatNote := "incl."
	if !inv.VATIncluded {
		vatNote = "excl."
	}
	msg := fmt.Sprintf("Invoice %s created for %s.\nSubtotal: %s\nVAT (%s%%, %s): %s\nTotal: %s\nDue: %s",
		ir.Number, ir.ClientName,
		formatMoney(ir.Currency, ir.Subtotal),
		inv.VATRate.Mul(decimal.NewFromInt(100)).String(), vatNote, formatMoney(ir.Currency, ir.VAT),
		formatMoney(ir.Currency, ir.Total),
		formatDate(ir.DueDate),
	)
	return ok(msg, ir), nil
}

func (o *Operations) createInvoiceTx(ctx context.Context, user *core.User, req CreateInvoiceRequest) (*core.Invoice, error) {
	var created *core.Invoice
	err := o.repo.WithinTx(ctx, user.ID, func(tx core.LedgerRepository) error {
		client, err := tx.CreateOrGetClient(ctx, user.ID, req.ClientName)
		if err != nil {
			return err
		}
		number, err := tx.NextInvoiceNumber(ctx, user.ID)
		if err != nil {
			return err
		}
		inv := &core.Invoice{
			UserID:      user.ID,
			ClientID:    client.ID,
			ClientName:  client.Name,
			Number:      number,
			Currency:    user.Currency,
			VATIncluded: req.VATIncluded,
			VATRate:     user.DefaultVATRate,
			Status:      core.InvoiceStatusDraft,
			DueDate:     o.now().AddDate(0, 0, req.DueInDays),
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		item := core.NewInvoiceItem(req.Description, 1, req.Amount)
		item.InvoiceID = inv.ID
		if err := tx.CreateInvoiceItem(ctx, &item); err != nil {
			return err
		}
		inv.Items = []core.InvoiceItem{item}
		created = inv
		return nil
	})
	return created, err
}

// LogExpense records an expense. The amount is the all-in amount paid, so its
// VAT is the inclusive split at the user's rate.
func (o *Operations) LogExpense(ctx context.Context, userID string, req LogExpenseRequest) (*Result, error) {
	if err := validateStruct(o.validate, req); err != nil {
		return nil, err
	}
	if err := checkAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	category := req.Category
	if category == "" {
		category = "Other"
	}
	date := req.Date
	if date.IsZero() {
		date = o.now()
	}
	e := &core.Expense{
		UserID:      userID,
		Description: req.Description,
		Amount:      req.Amount,
		Category:    category,
		Date:        date,
		VATAmount:   core.ExpenseVAT(req.Amount, user.DefaultVATRate),
	}
	if err := o.repo.CreateExpense(ctx, e); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Logged %s for %s (%s) on %s. VAT included: %s.",
		formatMoney(user.Currency, e.Amount), e.Description, e.Category, formatDate(e.Date),
		formatMoney(user.Currency, e.VATAmount))
	return ok(msg, ExpenseResult{
		ID:          e.ID,
		Description: e.Description,
		Category:    e.Category,
		Amount:      core.Money(e.Amount),
		VATAmount:   core.Money(e.VATAmount),
		Date:        e.Date,
	}), nil
}

// MarkInvoicePaid moves an unpaid invoice to PAID and records exactly one
// payment for the total recomputed from its items.
func (o *Operations) MarkInvoicePaid(ctx context.Context, userID string, req MarkInvoicePaidRequest) (*Result, error) {
	if err := validateStruct(o.validate, req); err != nil {
		return nil, err
	}
	if req.InvoiceRef == (InvoiceRef{}) {
		return nil, core.NewValidationError("invoiceNumber", "Which invoice was paid? Give me the number, e.g. INV-0001.")
	}
	method := req.Method
	if method == "" {
		method = defaultPaymentMethod
	}

	var (
		payment core.Payment
		inv     *core.Invoice
	)
	err := o.repo.WithinTx(ctx, userID, func(tx core.LedgerRepository) error {
		var err error
		inv, err = findInvoice(ctx, tx, userID, req.InvoiceRef)
		if err != nil {
			return err
		}
		if inv.Status == core.InvoiceStatusPaid {
			return conflictf(core.ErrAlreadyPaid, "Invoice %s is already marked as paid.", inv.Number)
		}
		if !inv.Status.CanTransition(core.InvoiceStatusPaid) {
			return conflictf(core.ErrInvalidTransition, "Invoice %s is %s and can't be marked as paid.",
				inv.Number, strings.ToLower(string(inv.Status)))
		}
		totals, err := core.InvoiceTotals(*inv)
		if err != nil {
			return err
		}
		paidAt := o.now()
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, userID, core.InvoiceStatusPaid, &paidAt); err != nil {
			return err
		}
		payment = core.Payment{
			InvoiceID: inv.ID,
			Amount:    core.Money(totals.Total),
			Method:    method,
			PaidAt:    paidAt,
		}
		if err := tx.CreatePayment(ctx, &payment); err != nil {
			return err
		}
		inv.Status = core.InvoiceStatusPaid
		inv.PaidAt = &paidAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Invoice %s from %s marked as paid: %s received.",
		inv.Number, inv.ClientName, formatMoney(inv.Currency, payment.Amount))
	return ok(msg, PaymentResult{
		PaymentID:     payment.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Amount:        payment.Amount,
		Method:        payment.Method,
		PaidAt:        payment.PaidAt,
	}), nil
}

// UpdateInvoice changes an invoice's status. PAID goes through MarkInvoicePaid so
// a payment is always recorded.
func (o *Operations) UpdateInvoice(ctx context.Context, userID string, req UpdateInvoiceRequest) (*Result, error) {
	if err := validateStruct(o.validate, req); err != nil {
		return nil, err
	}
	if req.InvoiceRef == (InvoiceRef{}) {
		return nil, core.NewValidationError("invoiceNumber", "Which invoice should I update? Give me the number, e.g. INV-0001.")
	}
	if req.Status == core.InvoiceStatusPaid {
		return o.MarkInvoicePaid(ctx, userID, MarkInvoicePaidRequest{InvoiceRef: req.InvoiceRef, Method: req.Method})
	}

	var change StatusChangeResult
	err := o.repo.WithinTx(ctx, userID, func(tx core.LedgerRepository) error {
		inv, err := findInvoice(ctx, tx, userID, req.InvoiceRef)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransition(req.Status) {
			return conflictf(core.ErrInvalidTransition, "Invoice %s is %s and can't be changed to %s.",
				inv.Number, strings.ToLower(string(inv.Status)), strings.ToLower(string(req.Status)))
		}
		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, userID, req.Status, nil); err != nil {
			return err
		}
		change = StatusChangeResult{InvoiceID: inv.ID, InvoiceNumber: inv.Number, From: inv.Status, To: req.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Invoice %s is now %s.", change.InvoiceNumber, strings.ToLower(string(change.To)))
	return ok(msg, change), nil
}

// ListInvoices returns the user's invoices, newest first.
func (o *Operations) ListInvoices(ctx context.Context, userID string, req ListInvoicesRequest) (*Result, error) {
	if err := validateStruct(o.validate, req); err != nil {
		return nil, err
	}
	filter := core.InvoiceFilter{Limit: req.Limit}
	if req.Status != "" {
		filter.Statuses = []core.InvoiceStatus{req.Status}
	}
	invoices, err := o.repo.ListInvoices(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	out := InvoiceListResult{Invoices: make([]InvoiceResult, 0, len(invoices))}
	var b strings.Builder
	for _, inv := range invoices {
		ir, err := newInvoiceResult(inv)
		if err != nil {
			return nil, err
		}
		out.Invoices = append(out.Invoices, ir)
		fmt.Fprintf(&b, "\n%s  %s  %s  %s  due %s", ir.Number, ir.ClientName,
			formatMoney(ir.Currency, ir.Total), ir.Status, formatDate(ir.DueDate))
	}

	if len(out.Invoices) == 0 {
		if req.Status != "" {
			return ok(fmt.Sprintf("You have no %s invoices.", strings.ToLower(string(req.Status))), out), nil
		}
		return ok("You have no invoices yet.", out), nil
	}
	return ok(fmt.Sprintf("Your invoices (%s):%s", pluralize(len(out.Invoices), "invoice", "invoices"), b.String()), out), nil
}

// findInvoice resolves a reference by id or by number.
func findInvoice(ctx context.Context, repo core.LedgerRepository, userID string, ref InvoiceRef) (*core.Invoice, error) {
	var (
		inv *core.Invoice
		err error
	)
	if ref.InvoiceID != "" {
		inv, err = repo.GetInvoice(ctx, ref.InvoiceID, userID)
	} else {
		inv, err = repo.GetInvoiceByNumber(ctx, userID, ref.InvoiceNumber)
	}
	if core.IsNotFound(err) {
		return nil, notFoundf("I couldn't find invoice %s.", ref)
	}
	return inv, err
}

// Greeting welcomes the user by name.
func (o *Operations) Greeting(ctx context.Context, userID string) (*Result, error) {
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	name := user.BusinessName
	if name == "" {
		name = user.DisplayName
	}
	greeting := "Hi!"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s!", name)
	}
	return ok(greeting+" I'm your financial assistant. I can create invoices, log expenses and prepare VAT reports. Say \"help\" to see examples.", nil), nil
}

// Help is static.
func (o *Operations) Help() *Result {
	return ok(helpText, nil)
}
