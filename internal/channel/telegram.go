package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	APIBase  string // e.g. https://api.telegram.org
	BotToken string
}

// TelegramSender sends messages through the Telegram Bot API.
type TelegramSender struct {
	cfg    TelegramConfig
	client *http.Client
}

func NewTelegramSender(cfg TelegramConfig, client *http.Client) *TelegramSender {
	if client == nil {
		client = defaultClient()
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &TelegramSender{cfg: cfg, client: client}
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send delivers text to the chat with id to.
func (s *TelegramSender) Send(ctx context.Context, to, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.cfg.APIBase, s.cfg.BotToken)
	if err := postJSON(ctx, s.client, url, nil, telegramMessage{ChatID: to, Text: clip(text)}); err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("telegram send: %w", redact(err, s.cfg.BotToken))
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
