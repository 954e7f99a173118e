package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
)

var errExit = errors.New("exit")

// session is one interactive chat for one local user.
type session struct {
	ctx    context.Context
	svc    app.ApplicationService
	user   *core.User
	reader *bufio.Reader
	out    io.Writer
}

// Run starts the interactive REPL loop. Slash commands run deterministically;
// anything else goes through the intent resolver like a chat message would.
func Run(ctx context.Context, svc app.ApplicationService, handle string, reader *bufio.Reader, out io.Writer) error {
	user, err := svc.IdentifyUser(ctx, core.ChannelCLI, handle, "")
	if err != nil {
		return fmt.Errorf("identify user: %w", err)
	}
	s := &session{ctx: ctx, svc: svc, user: user, reader: reader, out: out}

	fmt.Fprintln(out, "Finance Assistant")
	fmt.Fprintf(out, "Currency: %s  VAT rate: %s%%\n", user.Currency, user.DefaultVATRate.Shift(2).String())
	fmt.Fprintln(out, "Tell me about an invoice or expense, or use /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	for {
		fmt.Fprint(out, "\n> ")
		input, readErr := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input != "" {
			if strings.HasPrefix(input, "/") {
				if err := s.dispatchSlash(input); err != nil {
					if errors.Is(err, errExit) {
						fmt.Fprintln(out, "Goodbye!")
						return nil
					}
					fmt.Fprintf(out, "Error: %v\n", err)
				}
			} else {
				reply := svc.HandleMessage(ctx, app.InboundMessage{Channel: core.ChannelCLI, Handle: handle, Text: input})
				fmt.Fprintf(out, "\n%s\n", reply.Text)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return readErr
		}
	}
}

func (s *session) dispatchSlash(input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "invoices", "inv":
		p := map[string]any{}
		if len(args) > 0 {
			p["status"] = args[0]
		}
		res := s.exec(ai.IntentListInvoices, p)
		if list, ok := res.Data.(app.InvoiceListResult); ok && len(list.Invoices) > 0 {
			printInvoices(s.out, list)
			return nil
		}
		fmt.Fprintln(s.out, res.Message)

	case "report", "rep":
		p := map[string]any{}
		if len(args) > 0 {
			p["reportType"] = args[0]
		}
		if len(args) > 1 {
			p["period"] = args[1]
		}
		res := s.exec(ai.IntentGenerateReport, p)
		if rep, ok := res.Data.(app.ReportResult); ok {
			printReport(s.out, s.user.Currency, rep)
			return nil
		}
		fmt.Fprintln(s.out, res.Message)

	case "paid":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /paid <invoice-number> [method]")
			return nil
		}
		p := map[string]any{"invoiceNumber": args[0], "status": string(core.InvoiceStatusPaid)}
		if len(args) > 1 {
			p["method"] = args[1]
		}
		fmt.Fprintln(s.out, s.exec(ai.IntentUpdateInvoice, p).Message)

	case "cancel":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /cancel <invoice-number>")
			return nil
		}
		p := map[string]any{"invoiceNumber": args[0], "status": string(core.InvoiceStatusCancelled)}
		fmt.Fprintln(s.out, s.exec(ai.IntentUpdateInvoice, p).Message)

	case "check":
		fmt.Fprintln(s.out, s.exec(ai.IntentComplianceCheck, map[string]any{}).Message)

	case "remind":
		p := map[string]any{}
		if len(args) > 0 {
			p["invoiceNumber"] = args[0]
		}
		fmt.Fprintln(s.out, s.exec(ai.IntentSetReminder, p).Message)

	case "new-invoice", "new":
		s.newInvoiceWizard()

	case "new-expense":
		s.newExpenseWizard()

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}

func (s *session) exec(intent ai.Intent, p map[string]any) *app.Result {
	return s.svc.Execute(s.ctx, s.user.ID, intent, p)
}
