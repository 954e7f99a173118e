package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"finance-assistant/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSplitVAT_Examples(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		rate        string
		vatIncluded bool
		subtotal    string
		vat         string
		total       string
	}{
		{"inclusive 1150 at 15%", "1150", "0.15", true, "1000.00", "150.00", "1150.00"},
		{"exclusive 1000 at 15%", "1000", "0.15", false, "1000.00", "150.00", "1150.00"},
		{"inclusive 500 at 15%", "500", "0.15", true, "434.78", "65.22", "500.00"},
		{"zero rate inclusive", "250", "0", true, "250.00", "0.00", "250.00"},
		{"zero rate exclusive", "250", "0", false, "250.00", "0.00", "250.00"},
		{"zero amount", "0", "0.15", true, "0.00", "0.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.SplitVAT(d(tt.amount), d(tt.rate), tt.vatIncluded).Rounded()
			assert.True(t, got.Subtotal.Equal(d(tt.subtotal)), "subtotal: got %s", got.Subtotal)
			assert.True(t, got.VAT.Equal(d(tt.vat)), "vat: got %s", got.VAT)
			assert.True(t, got.Total.Equal(d(tt.total)), "total: got %s", got.Total)
		})
	}
}

func TestSplitVAT_PartsSumToTotal(t *testing.T) {
	amounts := []string{"0.01", "1", "99.99", "434.78", "1234.56", "1000000"}
	rates := []string{"0", "0.05", "0.14", "0.15", "0.2"}
	for _, a := range amounts {
		for _, r := range rates {
			for _, incl := range []bool{true, false} {
				s := core.SplitVAT(d(a), d(r), incl)
				assert.True(t, s.Subtotal.Add(s.VAT).Equal(s.Total), "amount=%s rate=%s incl=%v", a, r, incl)
				if incl {
					assert.True(t, s.Total.Equal(d(a)))
				} else {
					assert.True(t, s.Subtotal.Equal(d(a)))
				}
			}
		}
	}
}

func TestExpenseVAT(t *testing.T) {
	got := core.Money(core.ExpenseVAT(d("115"), d("0.15")))
	assert.True(t, got.Equal(d("15")), "got %s", got)
}

func TestValidVATRate(t *testing.T) {
	assert.True(t, core.ValidVATRate(d("0")))
	assert.True(t, core.ValidVATRate(d("0.15")))
	assert.False(t, core.ValidVATRate(d("1")))
	assert.False(t, core.ValidVATRate(d("-0.01")))
}
