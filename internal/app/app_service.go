package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/core"
	"finance-assistant/internal/logger"
	"finance-assistant/internal/workflow"
)

type appService struct {
	repo     core.LedgerRepository
	ops      *Operations
	resolver IntentResolver
	engine   *workflow.Engine
	log      *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	repo core.LedgerRepository,
	resolver IntentResolver,
	wf workflow.Config,
	log *zap.Logger,
	opts ...OperationsOption,
) ApplicationService {
	log = logger.OrNop(log)
	ops := NewOperations(repo, log.Named("ops"), opts...)
	return &appService{
		repo:     repo,
		ops:      ops,
		resolver: resolver,
		engine:   workflow.NewEngine(ops.WorkflowHandlers(), wf, log.Named("workflow"), workflow.WithErrorText(UserMessage)),
		log:      log,
	}
}

// HandleMessage runs one chat message end to end.
func (s *appService) HandleMessage(ctx context.Context, msg InboundMessage) *Reply {
	user, err := s.IdentifyUser(ctx, msg.Channel, msg.Handle, msg.DisplayName)
	if err != nil {
		s.log.Error("identify user failed",
			zap.String("channel", string(msg.Channel)), zap.String("handle", msg.Handle), zap.Error(err))
		res := failure(err)
		return &Reply{Intent: ai.IntentHelp, Result: res, Text: res.Message}
	}

	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", user.ID), zap.String("channel", string(msg.Channel)))
	ctx = logger.WithContext(ctx, log)

	resolution := s.resolver.Resolve(ctx, user.ID, msg.Text)
	log.Info("message resolved",
		zap.String("intent", string(resolution.Intent)),
		zap.Float64("confidence", resolution.Confidence),
		zap.Int("params", len(resolution.Parameters)),
	)

	res := s.ops.Execute(ctx, user.ID, resolution.Intent, resolution.Parameters)
	text := res.Message
	if resolution.Intent == ai.IntentHelp && resolution.Response != "" {
		text = strings.TrimSpace(resolution.Response) + "\n\n" + text
	}
	return &Reply{
		UserID:     user.ID,
		Intent:     resolution.Intent,
		Confidence: resolution.Confidence,
		Result:     res,
		Text:       text,
	}
}

// IdentifyUser returns the user linked to the handle, creating one on first contact.
func (s *appService) IdentifyUser(ctx context.Context, channel core.Channel, handle, displayName string) (*core.User, error) {
	handle = strings.TrimSpace(handle)
	if !channel.Valid() {
		return nil, core.NewValidationError("channel", "Unknown channel.")
	}
	if handle == "" {
		return nil, core.NewValidationError("handle", "I couldn't tell who sent this message.")
	}
	return s.repo.GetOrCreateUser(ctx, channel, handle, strings.TrimSpace(displayName))
}

// Execute runs one intent with structured parameters.
func (s *appService) Execute(ctx context.Context, userID string, intent ai.Intent, params map[string]any) *Result {
	return s.ops.Execute(ctx, userID, intent, params)
}

// RunWorkflow runs def for userID.
func (s *appService) RunWorkflow(ctx context.Context, userID string, def *workflow.Definition) (*workflow.Execution, error) {
	if def == nil {
		return nil, core.NewValidationError("steps", "a workflow needs at least one step")
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.engine.RunDefinition(ctx, userID, def)
}
