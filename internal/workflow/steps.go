package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"finance-assistant/internal/core"
)

// Kind names a step variant on the wire.
type Kind string

const (
	KindCreateInvoice   Kind = "create_invoice"
	KindLogExpense      Kind = "log_expense"
	KindGenerateReport  Kind = "generate_report"
	KindMarkInvoicePaid Kind = "mark_invoice_paid"
)

// Step is one of CreateInvoiceStep, LogExpenseStep, GenerateReportStep or
// MarkInvoicePaidStep. The set is closed; the engine matches on the concrete type.
type Step interface {
	Kind() Kind
	isStep()
}

// CreateInvoiceStep creates a single-line invoice.
type CreateInvoiceStep struct {
	ClientName  string          `json:"clientName"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	DueInDays   int             `json:"dueInDays,omitempty"`
	VATIncluded *bool           `json:"vatIncluded,omitempty"`
}

// LogExpenseStep records an expense. Date is YYYY-MM-DD; empty means today.
type LogExpenseStep struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Date        string          `json:"date,omitempty"`
}

// GenerateReportStep produces a summary, vat or profit_loss report.
type GenerateReportStep struct {
	ReportType string `json:"reportType"`
	Period     string `json:"period,omitempty"`
}

// MarkInvoicePaidStep marks an invoice paid by number or id.
type MarkInvoicePaidStep struct {
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	InvoiceID     string `json:"invoiceId,omitempty"`
	Method        string `json:"method,omitempty"`
}

func (CreateInvoiceStep) Kind() Kind   { return KindCreateInvoice }
func (LogExpenseStep) Kind() Kind      { return KindLogExpense }
func (GenerateReportStep) Kind() Kind  { return KindGenerateReport }
func (MarkInvoicePaidStep) Kind() Kind { return KindMarkInvoicePaid }

func (CreateInvoiceStep) isStep()   {}
func (LogExpenseStep) isStep()      {}
func (GenerateReportStep) isStep()  {}
func (MarkInvoicePaidStep) isStep() {}

// envelope is the JSON form of a step: {"kind": "...", "params": {...}}.
type envelope struct {
	Kind   Kind            `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// Definition is a named, ordered list of steps as submitted by a client.
type Definition struct {
	Name  string
	Steps []Step
}

// MarshalJSON writes steps back in envelope form.
func (d Definition) MarshalJSON() ([]byte, error) {
	out := struct {
		Name  string     `json:"name,omitempty"`
		Steps []envelope `json:"steps"`
	}{Name: d.Name, Steps: make([]envelope, 0, len(d.Steps))}
	for _, s := range d.Steps {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, envelope{Kind: s.Kind(), Params: raw})
	}
	return json.Marshal(out)
}

// ParseDefinition decodes {"name": "...", "steps": [{"kind": ..., "params": ...}]}.
// Unknown kinds and unknown parameter fields are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	var raw struct {
		Name  string     `json:"name"`
		Steps []envelope `json:"steps"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, core.NewValidationError("workflow", fmt.Sprintf("invalid workflow definition: %v", err))
	}
	if len(raw.Steps) == 0 {
		return nil, core.NewValidationError("steps", "a workflow needs at least one step")
	}

	def := &Definition{Name: raw.Name, Steps: make([]Step, 0, len(raw.Steps))}
	for i, env := range raw.Steps {
		s, err := decodeStep(env)
		if err != nil {
			return nil, core.NewValidationError(fmt.Sprintf("steps[%d]", i), err.Error())
		}
		def.Steps = append(def.Steps, s)
	}
	return def, nil
}

func decodeStep(env envelope) (Step, error) {
	var target Step
	switch env.Kind {
	case KindCreateInvoice:
		var s CreateInvoiceStep
		if err := strictUnmarshal(env.Params, &s); err != nil {
			return nil, err
		}
		target = s
	case KindLogExpense:
		var s LogExpenseStep
		if err := strictUnmarshal(env.Params, &s); err != nil {
			return nil, err
		}
		target = s
	case KindGenerateReport:
		var s GenerateReportStep
		if err := strictUnmarshal(env.Params, &s); err != nil {
			return nil, err
		}
		target = s
	case KindMarkInvoicePaid:
		var s MarkInvoicePaidStep
		if err := strictUnmarshal(env.Params, &s); err != nil {
			return nil, err
		}
		target = s
	default:
		return nil, fmt.Errorf("unknown step kind %q", env.Kind)
	}
	return target, nil
}

func strictUnmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("params are required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
