package workflow_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-assistant/internal/core"
	"finance-assistant/internal/workflow"
)

func TestParseDefinition(t *testing.T) {
	data := []byte(`{
		"name": "month end",
		"steps": [
			{"kind": "create_invoice", "params": {"clientName": "ABC Company", "amount": "500", "description": "website design", "vatIncluded": false}},
			{"kind": "log_expense", "params": {"amount": 450, "description": "transport fuel", "category": "Transport"}},
			{"kind": "mark_invoice_paid", "params": {"invoiceNumber": "INV-0001"}},
			{"kind": "generate_report", "params": {"reportType": "vat", "period": "quarter"}}
		]
	}`)

	def, err := workflow.ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, "month end", def.Name)
	require.Len(t, def.Steps, 4)

	inv, ok := def.Steps[0].(workflow.CreateInvoiceStep)
	require.True(t, ok)
	assert.Equal(t, "ABC Company", inv.ClientName)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, inv.VATIncluded)
	assert.False(t, *inv.VATIncluded)

	exp, ok := def.Steps[1].(workflow.LogExpenseStep)
	require.True(t, ok)
	assert.True(t, exp.Amount.Equal(decimal.NewFromInt(450)))

	assert.Equal(t, workflow.KindMarkInvoicePaid, def.Steps[2].Kind())
	assert.Equal(t, workflow.GenerateReportStep{ReportType: "vat", Period: "quarter"}, def.Steps[3])
}

func TestParseDefinition_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"no steps":       `{"name": "x", "steps": []}`,
		"unknown kind":   `{"steps": [{"kind": "send_email", "params": {}}]}`,
		"unknown param":  `{"steps": [{"kind": "generate_report", "params": {"reportType": "vat", "colour": "red"}}]}`,
		"missing params": `{"steps": [{"kind": "log_expense"}]}`,
		"unknown field":  `{"steps": [], "owner": "me"}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := workflow.ParseDefinition([]byte(data))
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
		})
	}
}

func TestDefinition_MarshalRoundTrip(t *testing.T) {
	def := workflow.Definition{
		Name: "quick",
		Steps: []workflow.Step{
			workflow.GenerateReportStep{ReportType: "summary"},
		},
	}
	raw, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"quick","steps":[{"kind":"generate_report","params":{"reportType":"summary"}}]}`, string(raw))

	back, err := workflow.ParseDefinition(raw)
	require.NoError(t, err)
	assert.Equal(t, def.Steps, back.Steps)
}
