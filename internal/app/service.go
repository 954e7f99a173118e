package app

import (
	"context"

	"finance-assistant/internal/ai"
	"finance-assistant/internal/core"
	"finance-assistant/internal/workflow"
)

// InboundMessage is one chat message after a channel adapter has parsed its envelope.
type InboundMessage struct {
	Channel     core.Channel
	Handle      string // channel-specific sender id: phone number, chat id, web user id
	DisplayName string
	Text        string
}

// Reply is what a channel adapter sends back. Text is always set.
type Reply struct {
	UserID     string    `json:"user_id,omitempty"`
	Intent     ai.Intent `json:"intent"`
	Confidence float64   `json:"confidence"`
	Result     *Result   `json:"result"`
	Text       string    `json:"text"`
}

// IntentResolver maps free text to an intent. *ai.Resolver implements it.
type IntentResolver interface {
	Resolve(ctx context.Context, userID, text string) ai.Resolution
}

// ApplicationService is the single interface all channel adapters (web, WhatsApp,
// Telegram, CLI, REPL) call. Implementations contain no display logic and never
// write to the terminal.
type ApplicationService interface {
	// HandleMessage identifies the sender, resolves the text to an intent and runs it.
	// It never fails: every problem is turned into a Reply the user can read.
	HandleMessage(ctx context.Context, msg InboundMessage) *Reply

	// IdentifyUser returns the user behind a channel handle, creating one on first contact.
	IdentifyUser(ctx context.Context, channel core.Channel, handle, displayName string) (*core.User, error)

	// Execute runs one intent with already-structured parameters.
	Execute(ctx context.Context, userID string, intent ai.Intent, params map[string]any) *Result

	// RunWorkflow runs a pre-planned sequence of steps for a user.
	RunWorkflow(ctx context.Context, userID string, def *workflow.Definition) (*workflow.Execution, error)
}
