package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
	"finance-assistant/internal/workflow"
)

const usage = `Usage:
  app say "<message>"                  send one message to the assistant
  app report [summary|vat|profit_loss] [period]
  app invoices [status]
  app paid <invoice-number> [method]
  app workflow <file.json>             run a workflow definition
  app                                  interactive chat`

// ErrFailed is returned when the command ran but the operation did not succeed.
// The user-facing message has already been printed.
var ErrFailed = errors.New("operation failed")

// Run executes a one-shot CLI command as the local user identified by handle.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, handle string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given\n%s", usage)
	}

	switch args[0] {
	case "say", "s":
		if len(args) < 2 {
			return fmt.Errorf("usage: app say \"<message>\"")
		}
		reply := svc.HandleMessage(ctx, app.InboundMessage{
			Channel: core.ChannelCLI,
			Handle:  handle,
			Text:    strings.Join(args[1:], " "),
		})
		fmt.Fprintln(out, reply.Text)
		if !reply.Result.Success {
			return ErrFailed
		}
		return nil

	case "report", "rep", "r":
		p := map[string]any{}
		if len(args) > 1 {
			p["reportType"] = args[1]
		}
		if len(args) > 2 {
			p["period"] = args[2]
		}
		return execute(ctx, svc, handle, ai.IntentGenerateReport, p, out)

	case "invoices", "inv", "i":
		p := map[string]any{}
		if len(args) > 1 {
			p["status"] = args[1]
		}
		return execute(ctx, svc, handle, ai.IntentListInvoices, p, out)

	case "paid", "pay":
		if len(args) < 2 {
			return fmt.Errorf("usage: app paid <invoice-number> [method]")
		}
		p := map[string]any{"invoiceNumber": args[1], "status": string(core.InvoiceStatusPaid)}
		if len(args) > 2 {
			p["method"] = args[2]
		}
		return execute(ctx, svc, handle, ai.IntentUpdateInvoice, p, out)

	case "workflow", "wf":
		if len(args) < 2 {
			return fmt.Errorf("usage: app workflow <file.json>")
		}
		return runWorkflow(ctx, svc, handle, args[1], out)

	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

func execute(ctx context.Context, svc app.ApplicationService, handle string, intent ai.Intent, p map[string]any, out io.Writer) error {
	user, err := svc.IdentifyUser(ctx, core.ChannelCLI, handle, "")
	if err != nil {
		return fmt.Errorf("identify user: %w", err)
	}
	res := svc.Execute(ctx, user.ID, intent, p)
	fmt.Fprintln(out, res.Message)
	if !res.Success {
		return ErrFailed
	}
	return nil
}

func runWorkflow(ctx context.Context, svc app.ApplicationService, handle, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return errors.New(app.UserMessage(err))
	}
	user, err := svc.IdentifyUser(ctx, core.ChannelCLI, handle, "")
	if err != nil {
		return fmt.Errorf("identify user: %w", err)
	}
	exec, err := svc.RunWorkflow(ctx, user.ID, def)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exec); err != nil {
		return err
	}
	if !exec.Success {
		return ErrFailed
	}
	return nil
}
