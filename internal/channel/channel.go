// Package channel sends replies back through the messaging platforms a user
// reached us on.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finance-assistant/internal/core"
)

// maxTextRunes is the longest message body both WhatsApp and Telegram accept.
const maxTextRunes = 4096

// Sender delivers one text message to a recipient on one channel.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// LogSender only logs. Used when a channel has no credentials configured.
type LogSender struct {
	Channel core.Channel
	Log     *zap.Logger
}

func (s LogSender) Send(_ context.Context, to, text string) error {
	if s.Log != nil {
		s.Log.Info("reply not delivered, channel not configured",
			zap.String("channel", string(s.Channel)), zap.String("to", to), zap.Int("length", len(text)))
	}
	return nil
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// postJSON sends body to url. A 429 or 5xx answer is reported as core.ErrTransient.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d: %s", core.ErrTransient, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return fmt.Errorf("send failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
}

// clip shortens text to the platform limit.
func clip(text string) string {
	r := []rune(text)
	if len(r) <= maxTextRunes {
		return text
	}
	return string(r[:maxTextRunes-1]) + "…"
}
