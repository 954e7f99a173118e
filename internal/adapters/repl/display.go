package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
)

func printInvoices(out io.Writer, list app.InvoiceListResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 76))
	fmt.Fprintf(out, "  %-10s %-24s %-10s %12s  %s\n", "NUMBER", "CLIENT", "STATUS", "TOTAL", "DUE")
	fmt.Fprintln(out, strings.Repeat("-", 76))
	for _, inv := range list.Invoices {
		fmt.Fprintf(out, "  %-10s %-24s %-10s %12s  %s\n",
			inv.Number, clip(inv.ClientName, 24), inv.Status, inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02"))
	}
	fmt.Fprintln(out, strings.Repeat("=", 76))
}

func printReport(out io.Writer, currency string, rep app.ReportResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 52))
	fmt.Fprintf(out, "  %s (%s)\n", strings.ToUpper(strings.ReplaceAll(string(rep.ReportType), "_", " ")), rep.Period)
	fmt.Fprintf(out, "  Currency : %s\n", currency)
	fmt.Fprintln(out, strings.Repeat("=", 52))
	switch r := rep.Report.(type) {
	case core.FinancialSummary:
		printSummary(out, r)
	case core.VATReport:
		row(out, "VAT collected (sales)", r.Collected)
		row(out, "VAT paid (expenses)", r.Paid)
		fmt.Fprintln(out, strings.Repeat("-", 52))
		if r.RefundDue {
			row(out, "Refund due", r.Owed.Neg())
		} else {
			row(out, "VAT owed", r.Owed)
		}
	case core.ProfitLoss:
		printSummary(out, r.Summary)
		fmt.Fprintln(out, strings.Repeat("-", 52))
		for _, c := range r.ExpensesByCategory {
			row(out, fmt.Sprintf("  %s (%d)", c.Category, c.Count), c.Total)
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 52))
}

func printSummary(out io.Writer, s core.FinancialSummary) {
	row(out, "Revenue (excl. VAT)", s.Revenue)
	row(out, "Expenses", s.Expenses)
	row(out, "Net profit", s.NetProfit)
	fmt.Fprintf(out, "  %-30s %17s%%\n", "Margin", s.Margin.StringFixed(2))
	fmt.Fprintf(out, "  %-30s %18d\n", "Invoices", s.InvoiceCount)
	fmt.Fprintf(out, "  %-30s %18d\n", "Expenses logged", s.ExpenseCount)
}

func row(out io.Writer, label string, amount decimal.Decimal) {
	fmt.Fprintf(out, "  %-30s %18s\n", label, amount.StringFixed(2))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Commands:
  /invoices [status]             list invoices (draft, sent, paid, overdue, cancelled)
  /report [type] [period]        summary | vat | profit_loss, for month | quarter | year
  /paid <number> [method]        mark an invoice paid
  /cancel <number>               cancel an invoice
  /check                         VAT and compliance check for this month
  /remind [number]               reminders for overdue invoices
  /new-invoice                   create an invoice step by step
  /new-expense                   log an expense step by step
  /help                          this list
  /exit                          quit

Anything else is read as a message, e.g. "Invoice ABC Company R5000 for web design".`)
}
