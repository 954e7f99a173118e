package app

import (
	"context"

	"finance-assistant/internal/core"
	"finance-assistant/internal/workflow"
)

// WorkflowHandlers adapts the typed handlers to workflow step variants. Each
// handler returns the Result data and the raw error so the engine can classify it.
func (o *Operations) WorkflowHandlers() workflow.Handlers {
	return workflow.Handlers{
		CreateInvoice:   o.createInvoiceStep,
		LogExpense:      o.logExpenseStep,
		GenerateReport:  o.generateReportStep,
		MarkInvoicePaid: o.markInvoicePaidStep,
	}
}

func resultData(res *Result, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (o *Operations) createInvoiceStep(ctx context.Context, userID string, s workflow.CreateInvoiceStep) (any, error) {
	req := CreateInvoiceRequest{
		ClientName:  s.ClientName,
		Amount:      s.Amount,
		Description: s.Description,
		DueInDays:   s.DueInDays,
		VATIncluded: true,
	}
	if req.DueInDays == 0 {
		req.DueInDays = defaultDueInDays
	}
	if s.VATIncluded != nil {
		req.VATIncluded = *s.VATIncluded
	}
	return resultData(o.CreateInvoice(ctx, userID, req))
}

func (o *Operations) logExpenseStep(ctx context.Context, userID string, s workflow.LogExpenseStep) (any, error) {
	date, err := params{"date": s.Date}.date("date", o.now().Location())
	if err != nil {
		return nil, err
	}
	return resultData(o.LogExpense(ctx, userID, LogExpenseRequest{
		Amount:      s.Amount,
		Description: s.Description,
		Category:    s.Category,
		Date:        date,
	}))
}

func (o *Operations) generateReportStep(ctx context.Context, userID string, s workflow.GenerateReportStep) (any, error) {
	rt, err := ParseReportType(s.ReportType)
	if err != nil {
		return nil, err
	}
	period, err := core.ParsePeriod(s.Period)
	if err != nil {
		return nil, err
	}
	return resultData(o.GenerateReport(ctx, userID, GenerateReportRequest{ReportType: rt, Period: period}))
}

func (o *Operations) markInvoicePaidStep(ctx context.Context, userID string, s workflow.MarkInvoicePaidStep) (any, error) {
	ref, err := params{"invoiceId": s.InvoiceID, "invoiceNumber": s.InvoiceNumber}.invoiceRef()
	if err != nil {
		return nil, err
	}
	return resultData(o.MarkInvoicePaid(ctx, userID, MarkInvoicePaidRequest{InvoiceRef: ref, Method: s.Method}))
}
