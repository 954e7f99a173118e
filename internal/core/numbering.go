package core

import (
	"fmt"
	"strconv"
	"strings"
)

const invoicePrefix = "INV-"

// FormatInvoiceNumber renders sequence n as INV-000N (at least four digits).
func FormatInvoiceNumber(n int64) string {
	return fmt.Sprintf("%s%04d", invoicePrefix, n)
}

// ParseInvoiceNumber extracts the sequence from a number like "INV-0012" or "inv 12".
// ok is false when s is not an invoice number.
func ParseInvoiceNumber(s string) (int64, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "#")
	if !strings.HasPrefix(s, "INV") {
		return 0, false
	}
	digits := strings.TrimLeft(strings.TrimPrefix(s, "INV"), "- ")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// NormalizeInvoiceNumber returns the canonical form of an invoice number, or "" if s is not one.
func NormalizeInvoiceNumber(s string) string {
	n, ok := ParseInvoiceNumber(s)
	if !ok {
		return ""
	}
	return FormatInvoiceNumber(n)
}
