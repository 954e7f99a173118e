package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/bootstrap"
	"finance-assistant/internal/config"
	"finance-assistant/internal/logger"
)

var samples = []struct {
	text string
	want ai.Intent
}{
	{"Invoice ABC Company R5000 for website design, due in 14 days", ai.IntentCreateInvoice},
	{"I spent R450 on fuel yesterday", ai.IntentLogExpense},
	{"ABC paid INV-0003 by EFT", ai.IntentUpdateInvoice},
	{"How much VAT do I owe this quarter?", ai.IntentGenerateReport},
	{"Show me my unpaid invoices", ai.IntentListInvoices},
	{"Am I compliant with SARS?", ai.IntentComplianceCheck},
	{"Remind clients who haven't paid", ai.IntentSetReminder},
	{"Hi there", ai.IntentGreeting},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console"})
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY not set")
	}

	resolver, err := bootstrap.NewResolver(cfg, log)
	if err != nil {
		log.Fatal("resolver", zap.Error(err))
	}

	ctx := context.Background()
	misses := 0
	for _, s := range samples {
		res := resolver.Resolve(ctx, "verify", s.text)
		mark := "ok  "
		if res.Intent != s.want {
			mark = "MISS"
			misses++
		}
		fmt.Printf("%s %-22s %.2f  %q\n", mark, res.Intent, res.Confidence, s.text)
		for k, v := range res.Parameters {
			fmt.Printf("       %s = %v\n", k, v)
		}
	}
	fmt.Printf("\n%d/%d resolved as expected\n", len(samples)-misses, len(samples))
	if misses > 0 {
		os.Exit(1)
	}
}
