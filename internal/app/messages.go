package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finance-assistant/internal/core"
)

const (
	msgNotFound  = "I couldn't find that record. Please check the details and try again."
	msgConflict  = "That change conflicts with the record's current state."
	msgTransient = "Something went wrong on our side. Please try again in a moment."
	msgInternal  = "Sorry, something went wrong. Please try again later."
)

const helpText = `Here's what I can do:
- Create an invoice: "Invoice ABC Company R500 for website design, due in 30 days"
- List invoices: "Show my unpaid invoices"
- Mark an invoice paid: "INV-0001 has been paid"
- Log an expense: "Spent R450 on fuel"
- Reports: "VAT report for this quarter", "profit and loss this year"
- Financial summary: "How is my business doing this month?"
- Compliance check: "Am I VAT compliant?"
- Reminders: "Remind clients about overdue invoices"`

// userError carries a message written for the user alongside its taxonomy class.
type userError struct {
	class error
	msg   string
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.class }

func notFoundf(format string, args ...any) error {
	return &userError{class: core.ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictf(class error, format string, args ...any) error {
	return &userError{class: class, msg: fmt.Sprintf(format, args...)}
}

// UserMessage turns any error into text that is safe to show a user.
// Raw internal error text is never returned.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *userError
	if errors.As(err, &ue) {
		return ue.msg
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch {
	case core.IsValidation(err):
		return "Some of the details were missing or invalid."
	case core.IsNotFound(err):
		return msgNotFound
	case core.IsConflict(err):
		return msgConflict
	case core.IsTransient(err):
		return msgTransient
	default:
		return msgInternal
	}
}

// CodeFor classifies err into a ResultCode.
func CodeFor(err error) ResultCode {
	switch {
	case err == nil:
		return CodeOK
	case core.IsValidation(err):
		return CodeValidation
	case core.IsNotFound(err):
		return CodeNotFound
	case errors.Is(err, core.ErrAlreadyPaid):
		return CodeAlreadyPaid
	case core.IsConflict(err):
		return CodeConflict
	case core.IsTransient(err):
		return CodeTransient
	default:
		return CodeInternal
	}
}

func failure(err error) *Result {
	return &Result{Success: false, Code: CodeFor(err), Message: UserMessage(err)}
}

// formatMoney renders a rounded amount, "R 1,150.00" for ZAR and "USD 1,150.00" otherwise.
func formatMoney(currency string, d decimal.Decimal) string {
	s := core.Money(d).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac

	symbol := currency
	if currency == "" || currency == core.DefaultCurrency {
		symbol = "R"
	}
	if neg {
		return "-" + symbol + " " + out
	}
	return symbol + " " + out
}

func formatDate(t interface{ Format(string) string }) string {
	return t.Format("2006-01-02")
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
