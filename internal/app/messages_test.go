package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-assistant/internal/core"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		currency string
		amount   string
		want     string
	}{
		{"ZAR", "434.7826", "R 434.78"},
		{"ZAR", "1150", "R 1,150.00"},
		{"", "1000000", "R 1,000,000.00"},
		{"ZAR", "-15.22", "-R 15.22"},
		{"USD", "99.999", "USD 100.00"},
		{"ZAR", "0", "R 0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMoney(tt.currency, decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestUserMessageHidesInternals(t *testing.T) {
	raw := errors.New(`ERROR: relation "invoices" does not exist (SQLSTATE 42P01)`)
	assert.Equal(t, msgInternal, UserMessage(raw))
	assert.Equal(t, CodeInternal, CodeFor(raw))

	assert.Equal(t, msgTransient, UserMessage(fmt.Errorf("query: %w", core.ErrTransient)))
	assert.Equal(t, msgNotFound, UserMessage(fmt.Errorf("%w: invoice 42", core.ErrNotFound)))
	assert.Equal(t, "Please tell me the amount.", UserMessage(core.NewValidationError("amount", "Please tell me the amount.")))

	paid := conflictf(core.ErrAlreadyPaid, "Invoice %s is already marked as paid.", "INV-0001")
	assert.Equal(t, CodeAlreadyPaid, CodeFor(paid))
	assert.Equal(t, CodeConflict, CodeFor(core.ErrInvalidTransition))
	assert.Equal(t, "Invoice INV-0001 is already marked as paid.", UserMessage(fmt.Errorf("tx: %w", paid)))
}

func TestParamsDecoding(t *testing.T) {
	p := params{
		"amount":        "R 1 250,00",
		"dueInDays":     float64(14),
		"vatIncluded":   "no",
		"invoiceNumber": "7",
	}
	amount, err := p.decimal("amount")
	assert.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1250)))

	days, err := p.integer("dueInDays", 30)
	assert.NoError(t, err)
	assert.Equal(t, 14, days)

	incl, err := p.boolean("vatIncluded", true)
	assert.NoError(t, err)
	assert.False(t, incl)

	ref, err := p.invoiceRef()
	assert.NoError(t, err)
	assert.Equal(t, "INV-0007", ref.InvoiceNumber)

	_, err = params{"invoiceNumber": "last one"}.invoiceRef()
	assert.True(t, core.IsValidation(err))

	_, err = params{"dueInDays": "2.5"}.integer("dueInDays", 30)
	assert.True(t, core.IsValidation(err))
}

func TestParamsDecimalSeparators(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"450,50", "450.50"},
		{"450,5", "450.5"},
		{"1,250.50", "1250.50"},
		{"1,250", "1250"},
		{"1 250,50", "1250.50"},
		{"R1 250,50", "1250.50"},
		{"ZAR 12,000,000", "12000000"},
		{"1150", "1150"},
		{"0.004", "0.004"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := params{"amount": tt.in}.decimal("amount")
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	for _, in := range []string{"1,2,3", "12,3456", "1,25.50", "1,2500", "ten"} {
		t.Run(in, func(t *testing.T) {
			_, err := params{"amount": in}.decimal("amount")
			assert.True(t, core.IsValidation(err), "%q should be rejected", in)
		})
	}
}

func TestCheckAmount(t *testing.T) {
	assert.NoError(t, checkAmount("amount", decimal.RequireFromString("0.01")))
	assert.NoError(t, checkAmount("amount", decimal.RequireFromString("450.50")))
	assert.True(t, core.IsValidation(checkAmount("amount", decimal.RequireFromString("0.004"))))
	assert.True(t, core.IsValidation(checkAmount("amount", decimal.RequireFromString("10.005"))))
	assert.True(t, core.IsValidation(checkAmount("amount", decimal.Zero)))
}
