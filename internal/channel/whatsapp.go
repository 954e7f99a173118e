package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	APIBase       string // e.g. https://graph.facebook.com/v20.0
	Token         string
	PhoneNumberID string
}

// WhatsAppSender sends text messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
}

// NewWhatsAppSender returns a sender. A nil client uses a 15s-timeout default.
func NewWhatsAppSender(cfg WhatsAppConfig, client *http.Client) *WhatsAppSender {
	if client == nil {
		client = defaultClient()
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &WhatsAppSender{cfg: cfg, client: client}
}

type whatsAppText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// Send delivers text to the WhatsApp number to.
func (s *WhatsAppSender) Send(ctx context.Context, to, text string) error {
	url := fmt.Sprintf("%s/%s/messages", s.cfg.APIBase, s.cfg.PhoneNumberID)
	header := http.Header{"Authorization": []string{"Bearer " + s.cfg.Token}}
	msg := whatsAppMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             whatsAppText{Body: clip(text)},
	}
	if err := postJSON(ctx, s.client, url, header, msg); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}
