package repl

import (
	"fmt"
	"strings"

	"finance-assistant/internal/ai"
)

// prompt asks one question. ok is false when the user typed "cancel" or input ended.
func (s *session) prompt(question string) (answer string, ok bool) {
	fmt.Fprintf(s.out, "  %s: ", question)
	raw, err := s.reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "cancel") || (err != nil && raw == "") {
		return "", false
	}
	return raw, true
}

// newInvoiceWizard collects invoice details one at a time. Blank answers to
// optional questions keep the defaults.
func (s *session) newInvoiceWizard() {
	fmt.Fprintln(s.out, "New invoice. Type 'cancel' at any prompt to abort.")

	p := map[string]any{}
	questions := []struct {
		key      string
		text     string
		optional bool
	}{
		{"clientName", "Client name", false},
		{"amount", "Amount", false},
		{"description", "Description", false},
		{"dueInDays", "Due in days [30]", true},
		{"vatIncluded", "Amount includes VAT? (y/n) [y]", true},
	}
	for _, q := range questions {
		ans, ok := s.prompt(q.text)
		if !ok {
			fmt.Fprintln(s.out, "Invoice creation cancelled.")
			return
		}
		if ans == "" && q.optional {
			continue
		}
		p[q.key] = ans
	}

	res := s.exec(ai.IntentCreateInvoice, p)
	fmt.Fprintln(s.out, res.Message)
}

// newExpenseWizard collects expense details one at a time.
func (s *session) newExpenseWizard() {
	fmt.Fprintln(s.out, "New expense. Type 'cancel' at any prompt to abort.")

	p := map[string]any{}
	for _, q := range []struct{ key, text string }{
		{"amount", "Amount (VAT inclusive)"},
		{"description", "Description"},
		{"category", "Category [Other]"},
		{"date", "Date YYYY-MM-DD [today]"},
	} {
		ans, ok := s.prompt(q.text)
		if !ok {
			fmt.Fprintln(s.out, "Expense cancelled.")
			return
		}
		if ans != "" {
			p[q.key] = ans
		}
	}

	res := s.exec(ai.IntentLogExpense, p)
	fmt.Fprintln(s.out, res.Message)
}
