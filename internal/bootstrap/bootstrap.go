// Package bootstrap assembles the application service from configuration. It is
// shared by the server and the terminal entry points.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/app"
	"finance-assistant/internal/config"
	"finance-assistant/internal/core"
	"finance-assistant/internal/db"
	"finance-assistant/internal/store/memory"
	"finance-assistant/internal/store/postgres"
	"finance-assistant/internal/workflow"
)

// Build returns the application service and a cleanup func. Without a
// DATABASE_URL the ledger lives in memory for the life of the process.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (app.ApplicationService, func(), error) {
	defaults := core.UserDefaults{Currency: cfg.DefaultCurrency, VATRate: cfg.DefaultVATRate}

	var (
		repo    core.LedgerRepository
		cleanup = func() {}
	)
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is not set, using in-memory ledger")
		repo = memory.New(defaults)
	} else {
		if cfg.AutoMigrate {
			if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		repo = postgres.NewStore(pool, defaults)
		cleanup = pool.Close
	}

	resolver, err := NewResolver(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	wf := workflow.Config{MaxAttempts: cfg.WorkflowMaxAttempts, BaseDelay: cfg.WorkflowBaseDelay}
	return app.NewAppService(repo, resolver, wf, log), cleanup, nil
}

// NewResolver builds the OpenAI-backed intent resolver.
func NewResolver(cfg *config.Config, log *zap.Logger) (*ai.Resolver, error) {
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is not set, every message will resolve to HELP")
	}
	completer := ai.NewOpenAICompleter(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	r, err := ai.NewResolver(completer, ai.ResolverConfig{
		Timeout:          cfg.ResolverTimeout,
		MaxMessageLength: cfg.MaxMessageLength,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("intent resolver: %w", err)
	}
	return r, nil
}
