package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finance-assistant/internal/app"
	"finance-assistant/internal/channel"
	"finance-assistant/internal/core"
	"finance-assistant/internal/logger"
)

const (
	msgTextOnly = "Sorry, I can only read text messages for now."
	msgSlowDown = "You're sending messages faster than I can keep up. Please wait a minute and try again."
)

// whatsAppVerify answers the Cloud API subscription handshake.
func (h *Handler) whatsAppVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.opts.WhatsAppVerifyToken == "" ||
		q.Get("hub.verify_token") != h.opts.WhatsAppVerifyToken {
		writeError(w, r, "verification failed", "FORBIDDEN", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

type whatsAppUpdate struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// whatsAppWebhook handles inbound Cloud API notifications. Status updates carry
// no messages and are acknowledged without work.
func (h *Handler) whatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	var upd whatsAppUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	for _, e := range upd.Entry {
		for _, c := range e.Changes {
			names := make(map[string]string, len(c.Value.Contacts))
			for _, ct := range c.Value.Contacts {
				names[ct.WaID] = ct.Profile.Name
			}
			for _, m := range c.Value.Messages {
				if m.From == "" {
					continue
				}
				if m.Type != "text" {
					h.deliver(r.Context(), h.opts.WhatsApp, core.ChannelWhatsApp, m.From, msgTextOnly)
					continue
				}
				h.converse(r, h.opts.WhatsApp, core.ChannelWhatsApp, m.From, m.From, names[m.From], m.Text.Body)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// telegramWebhook handles one Bot API update. Updates without a message (edits,
// callbacks) are acknowledged and ignored.
func (h *Handler) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	var upd telegramUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	m := upd.Message
	if m == nil || m.From == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	if strings.TrimSpace(m.Text) == "" {
		h.deliver(r.Context(), h.opts.Telegram, core.ChannelTelegram, chatID, msgTextOnly)
		w.WriteHeader(http.StatusOK)
		return
	}
	name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	h.converse(r, h.opts.Telegram, core.ChannelTelegram, strconv.FormatInt(m.From.ID, 10), chatID, name, m.Text)
	w.WriteHeader(http.StatusOK)
}

// converse runs one inbound message through the assistant and sends the reply
// back on the same channel.
func (h *Handler) converse(r *http.Request, s channel.Sender, ch core.Channel, handle, to, name, text string) {
	if !h.allowSender(r, string(ch)+":"+handle) {
		h.deliver(r.Context(), s, ch, to, msgSlowDown)
		return
	}
	reply := h.svc.HandleMessage(r.Context(), app.InboundMessage{
		Channel:     ch,
		Handle:      handle,
		DisplayName: name,
		Text:        text,
	})
	h.deliver(r.Context(), s, ch, to, reply.Text)
}

func (h *Handler) deliver(ctx context.Context, s channel.Sender, ch core.Channel, to, text string) {
	if err := s.Send(ctx, to, text); err != nil {
		logger.FromContext(ctx, h.log).Warn("reply delivery failed",
			zap.String("channel", string(ch)), zap.Bool("transient", core.IsTransient(err)), zap.Error(err))
	}
}
