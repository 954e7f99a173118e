package ai

import (
	"fmt"
	"strings"

	"finance-assistant/internal/core"
)

// Intent is the closed set of operations a message can resolve to.
type Intent string

const (
	IntentCreateInvoice    Intent = "CREATE_INVOICE"
	IntentListInvoices     Intent = "LIST_INVOICES"
	IntentUpdateInvoice    Intent = "UPDATE_INVOICE"
	IntentLogExpense       Intent = "LOG_EXPENSE"
	IntentFinancialSummary Intent = "FINANCIAL_SUMMARY"
	IntentComplianceCheck  Intent = "COMPLIANCE_CHECK"
	IntentSetReminder      Intent = "SET_REMINDER"
	IntentGenerateReport   Intent = "GENERATE_REPORT"
	IntentHelp             Intent = "HELP"
	IntentGreeting         Intent = "GREETING"
)

// ParseIntent accepts any casing and spaces or dashes for underscores.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if _, ok := DefaultCatalog().Get(Intent(s)); ok {
		return Intent(s), true
	}
	return "", false
}

// ParamHint documents one parameter an intent reads.
type ParamHint struct {
	Name        string
	Description string
	Required    bool
}

// IntentDefinition describes an intent to the language model.
type IntentDefinition struct {
	Intent      Intent
	Description string
	Params      []ParamHint
}

// Catalog holds the intents offered to the resolver, in presentation order.
type Catalog struct {
	defs []IntentDefinition
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register adds an intent to the catalog.
func (c *Catalog) Register(d IntentDefinition) {
	c.defs = append(c.defs, d)
}

// Get returns the definition for an intent, and whether it was found.
func (c *Catalog) Get(intent Intent) (IntentDefinition, bool) {
	for _, d := range c.defs {
		if d.Intent == intent {
			return d, true
		}
	}
	return IntentDefinition{}, false
}

// All returns every registered definition.
func (c *Catalog) All() []IntentDefinition {
	return c.defs
}

// Intents returns the registered intent names as strings, for the output schema enum.
func (c *Catalog) Intents() []string {
	out := make([]string, len(c.defs))
	for i, d := range c.defs {
		out[i] = string(d.Intent)
	}
	return out
}

// Render formats the catalog as the intent section of the resolver instructions.
func (c *Catalog) Render() string {
	var b strings.Builder
	for _, d := range c.defs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Intent, d.Description)
		for _, p := range d.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", p.Name, req, p.Description)
		}
	}
	return b.String()
}

var defaultCatalog = buildDefaultCatalog()

// DefaultCatalog returns the built-in catalog. Callers must not Register on it.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

func buildDefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(IntentDefinition{
		Intent:      IntentCreateInvoice,
		Description: "Create an invoice for a client.",
		Params: []ParamHint{
			{Name: "clientName", Description: "who the invoice is for", Required: true},
			{Name: "amount", Description: "amount as a plain decimal number, e.g. 500 or 1250.50", Required: true},
			{Name: "description", Description: "what the work or goods were", Required: true},
			{Name: "dueInDays", Description: "days until payment is due, default 30"},
			{Name: "vatIncluded", Description: "\"false\" only if the user says VAT must be added on top; default \"true\""},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentListInvoices,
		Description: "Show the user's invoices.",
		Params: []ParamHint{
			{Name: "status", Description: "DRAFT, SENT, PAID, OVERDUE or CANCELLED"},
			{Name: "limit", Description: "how many to show, default 10"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentUpdateInvoice,
		Description: "Change an invoice's status, including marking it paid.",
		Params: []ParamHint{
			{Name: "invoiceNumber", Description: "invoice number such as INV-0003", Required: true},
			{Name: "status", Description: "PAID, SENT or CANCELLED", Required: true},
			{Name: "method", Description: "payment method when marking paid, e.g. EFT, cash, card"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentLogExpense,
		Description: "Record money the business spent.",
		Params: []ParamHint{
			{Name: "amount", Description: "total amount paid including VAT, plain decimal", Required: true},
			{Name: "description", Description: "what it was for", Required: true},
			{Name: "category", Description: "one of: " + strings.Join(core.SuggestedExpenseCategories, ", ")},
			{Name: "date", Description: "YYYY-MM-DD, default today"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentFinancialSummary,
		Description: "Revenue, expenses, profit and margin.",
		Params: []ParamHint{
			{Name: "period", Description: "month, quarter or year, default month"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentComplianceCheck,
		Description: "VAT position and compliance warnings.",
		Params: []ParamHint{
			{Name: "period", Description: "month, quarter or year, default month"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentSetReminder,
		Description: "Remind clients about overdue invoices.",
		Params: []ParamHint{
			{Name: "invoiceNumber", Description: "a single invoice to remind about; all overdue invoices if empty"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentGenerateReport,
		Description: "A named report.",
		Params: []ParamHint{
			{Name: "reportType", Description: "summary, vat or profit_loss", Required: true},
			{Name: "period", Description: "month, quarter or year, default month"},
		},
	})
	c.Register(IntentDefinition{
		Intent:      IntentHelp,
		Description: "The user asks what you can do, or the message fits nothing else.",
	})
	c.Register(IntentDefinition{
		Intent:      IntentGreeting,
		Description: "A greeting with no request.",
	})
	return c
}
