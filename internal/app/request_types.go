package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/core"
)

// knownParams is the shared parameter vocabulary. A key outside it is rejected;
// a known key that the intent does not use is ignored.
var knownParams = map[string]bool{
	"clientName":    true,
	"amount":        true,
	"description":   true,
	"dueInDays":     true,
	"vatIncluded":   true,
	"category":      true,
	"date":          true,
	"reportType":    true,
	"period":        true,
	"invoiceId":     true,
	"invoiceNumber": true,
	"status":        true,
	"method":        true,
	"limit":         true,
}

const defaultDueInDays = 30

// CreateInvoiceRequest is the validated input of CreateInvoice.
type CreateInvoiceRequest struct {
	ClientName  string          `param:"clientName" validate:"required,max=200"`
	Amount      decimal.Decimal `param:"amount" validate:"gt=0"`
	Description string          `param:"description" validate:"required,max=500"`
	DueInDays   int             `param:"dueInDays" validate:"gt=0,lte=365"`
	VATIncluded bool            `param:"vatIncluded"`
}

// LogExpenseRequest is the validated input of LogExpense. A zero Date means today.
type LogExpenseRequest struct {
	Amount      decimal.Decimal `param:"amount" validate:"gt=0"`
	Description string          `param:"description" validate:"required,max=500"`
	Category    string          `param:"category" validate:"max=100"`
	Date        time.Time       `param:"date"`
}

// InvoiceRef names an invoice by id or by number.
type InvoiceRef struct {
	InvoiceID     string `param:"invoiceId"`
	InvoiceNumber string `param:"invoiceNumber"`
}

func (r InvoiceRef) String() string {
	if r.InvoiceNumber != "" {
		return r.InvoiceNumber
	}
	return r.InvoiceID
}

// MarkInvoicePaidRequest is the validated input of MarkInvoicePaid.
type MarkInvoicePaidRequest struct {
	InvoiceRef
	Method string `param:"method" validate:"max=50"`
}

// GenerateReportRequest is the validated input of GenerateReport.
type GenerateReportRequest struct {
	ReportType ReportType  `param:"reportType"`
	Period     core.Period `param:"period"`
}

// PeriodRequest is the input of FinancialSummary and ComplianceCheck.
type PeriodRequest struct {
	Period core.Period `param:"period"`
}

// ListInvoicesRequest is the validated input of ListInvoices.
type ListInvoicesRequest struct {
	Status core.InvoiceStatus `param:"status"`
	Limit  int                `param:"limit" validate:"gte=1,lte=50"`
}

// UpdateInvoiceRequest is the validated input of UpdateInvoice.
type UpdateInvoiceRequest struct {
	InvoiceRef
	Status core.InvoiceStatus `param:"status" validate:"required"`
	Method string             `param:"method" validate:"max=50"`
}

// SetReminderRequest targets one invoice, or every overdue invoice when empty.
type SetReminderRequest struct {
	InvoiceRef
}

// ReportType selects a GenerateReport output.
type ReportType string

const (
	ReportSummary    ReportType = "summary"
	ReportVAT        ReportType = "vat"
	ReportProfitLoss ReportType = "profit_loss"
)

// ParseReportType accepts common spellings. Empty means summary.
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "summary", "financial_summary", "financial summary", "overview":
		return ReportSummary, nil
	case "vat", "vat_report", "vat report", "tax":
		return ReportVAT, nil
	case "profit_loss", "profit-loss", "profit and loss", "profit & loss", "p&l", "pnl", "income statement":
		return ReportProfitLoss, nil
	}
	return "", core.NewValidationError("reportType", fmt.Sprintf("I can produce summary, vat or profit_loss reports, not %q.", s))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("param")
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validateStruct runs struct tags and converts the first failure to a ValidationError.
func validateStruct(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return core.NewValidationError(fe.Field(), validationMessage(fe))
	}
	return fmt.Errorf("%w: %v", core.ErrInternal, err)
}

// checkAmount rejects amounts that cannot be stored in whole cents.
func checkAmount(field string, d decimal.Decimal) error {
	if !d.Equal(core.Money(d)) {
		return core.NewValidationError(field, fmt.Sprintf("The %s can have at most 2 decimal places.", humanField(field)))
	}
	if core.Money(d).Sign() <= 0 {
		return core.NewValidationError(field, fmt.Sprintf("The %s must be at least 0.01.", humanField(field)))
	}
	return nil
}

func validationMessage(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("Please tell me the %s.", humanField(field))
	case "gt":
		return fmt.Sprintf("The %s must be greater than %s.", humanField(field), e.Param())
	case "gte":
		return fmt.Sprintf("The %s must be at least %s.", humanField(field), e.Param())
	case "lte":
		return fmt.Sprintf("The %s must be at most %s.", humanField(field), e.Param())
	case "max":
		return fmt.Sprintf("The %s is too long (at most %s characters).", humanField(field), e.Param())
	default:
		return fmt.Sprintf("The %s is not valid.", humanField(field))
	}
}

func humanField(param string) string {
	switch param {
	case "clientName":
		return "client name"
	case "dueInDays":
		return "number of days until payment is due"
	case "reportType":
		return "report type"
	case "invoiceNumber", "invoiceId":
		return "invoice number"
	default:
		return param
	}
}

// params reads typed values out of a resolver parameter map. Values may be
// strings (from the resolver) or JSON scalars (from workflow definitions).
type params map[string]any

func checkKeys(p map[string]any) error {
	for k := range p {
		if !knownParams[k] {
			return core.NewValidationError(k, fmt.Sprintf("I don't understand the detail %q.", k))
		}
	}
	return nil
}

func (p params) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

var (
	decimalComma   = regexp.MustCompile(`^-?\d+,\d{1,2}$`)
	groupedCommas  = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	currencyPrefix = regexp.MustCompile(`^(?i)(zar|r)\s*`)
)

// decimal reads an amount. Spaces group thousands. A comma followed by one or
// two digits is the decimal separator; otherwise commas must group digits in
// threes ("1,250.50"). Anything else is rejected.
func (p params) decimal(key string) (decimal.Decimal, error) {
	raw := p.str(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	invalid := core.NewValidationError(key, fmt.Sprintf("The %s %q is not a number.", humanField(key), raw))

	s := currencyPrefix.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if strings.Contains(s, ",") {
		switch {
		case decimalComma.MatchString(s):
			s = strings.Replace(s, ",", ".", 1)
		case groupedCommas.MatchString(s):
			s = strings.ReplaceAll(s, ",", "")
		default:
			return decimal.Zero, invalid
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid
	}
	return d, nil
}

func (p params) integer(key string, def int) (int, error) {
	s := p.str(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, core.NewValidationError(key, fmt.Sprintf("The %s %q must be a whole number.", humanField(key), s))
		}
		n = int(f)
	}
	return n, nil
}

func (p params) boolean(key string, def bool) (bool, error) {
	switch strings.ToLower(p.str(key)) {
	case "":
		return def, nil
	case "true", "yes", "y", "1", "inclusive", "incl":
		return true, nil
	case "false", "no", "n", "0", "exclusive", "excl":
		return false, nil
	}
	return false, core.NewValidationError(key, fmt.Sprintf("Please answer yes or no for %s.", humanField(key)))
}

func (p params) date(key string, loc *time.Location) (time.Time, error) {
	s := p.str(key)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", "02/01/2006", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, core.NewValidationError(key, fmt.Sprintf("I couldn't read the date %q. Use YYYY-MM-DD.", s))
}

func (p params) invoiceRef() (InvoiceRef, error) {
	ref := InvoiceRef{InvoiceID: p.str("invoiceId")}
	if raw := p.str("invoiceNumber"); raw != "" {
		ref.InvoiceNumber = core.NormalizeInvoiceNumber(raw)
		if ref.InvoiceNumber == "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				ref.InvoiceNumber = core.FormatInvoiceNumber(int64(n))
			} else {
				return InvoiceRef{}, core.NewValidationError("invoiceNumber", fmt.Sprintf("%q doesn't look like an invoice number such as INV-0001.", raw))
			}
		}
	}
	return ref, nil
}

func (p params) status(key string) (core.InvoiceStatus, error) {
	s := p.str(key)
	if s == "" {
		return "", nil
	}
	st, ok := core.ParseInvoiceStatus(s)
	if !ok {
		return "", core.NewValidationError(key, fmt.Sprintf("%q is not an invoice status. Use DRAFT, SENT, PAID, OVERDUE or CANCELLED.", s))
	}
	return st, nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeCreateInvoice(p params) (CreateInvoiceRequest, error) {
	amount, aerr := p.decimal("amount")
	due, derr := p.integer("dueInDays", defaultDueInDays)
	incl, ierr := p.boolean("vatIncluded", true)
	req := CreateInvoiceRequest{
		ClientName:  p.str("clientName"),
		Amount:      amount,
		Description: p.str("description"),
		DueInDays:   due,
		VATIncluded: incl,
	}
	return req, firstErr(aerr, derr, ierr)
}

func decodeLogExpense(p params, loc *time.Location) (LogExpenseRequest, error) {
	amount, aerr := p.decimal("amount")
	date, derr := p.date("date", loc)
	req := LogExpenseRequest{
		Amount:      amount,
		Description: p.str("description"),
		Category:    p.str("category"),
		Date:        date,
	}
	return req, firstErr(aerr, derr)
}

func decodeGenerateReport(p params) (GenerateReportRequest, error) {
	rt, rerr := ParseReportType(p.str("reportType"))
	period, perr := core.ParsePeriod(p.str("period"))
	return GenerateReportRequest{ReportType: rt, Period: period}, firstErr(rerr, perr)
}

func decodePeriod(p params) (PeriodRequest, error) {
	period, err := core.ParsePeriod(p.str("period"))
	return PeriodRequest{Period: period}, err
}

func decodeListInvoices(p params) (ListInvoicesRequest, error) {
	status, serr := p.status("status")
	limit, lerr := p.integer("limit", 10)
	return ListInvoicesRequest{Status: status, Limit: limit}, firstErr(serr, lerr)
}

func decodeUpdateInvoice(p params) (UpdateInvoiceRequest, error) {
	ref, rerr := p.invoiceRef()
	status, serr := p.status("status")
	return UpdateInvoiceRequest{InvoiceRef: ref, Status: status, Method: p.str("method")}, firstErr(rerr, serr)
}

func decodeSetReminder(p params) (SetReminderRequest, error) {
	ref, err := p.invoiceRef()
	return SetReminderRequest{InvoiceRef: ref}, err
}

// intentUsesParams reports whether an intent reads any parameters.
func intentUsesParams(intent ai.Intent) bool {
	return intent != ai.IntentHelp && intent != ai.IntentGreeting
}
