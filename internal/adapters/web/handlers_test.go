package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-assistant/internal/adapters/web"
	"finance-assistant/internal/ai"
	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
	"finance-assistant/internal/store/memory"
	"finance-assistant/internal/workflow"
)

type invoiceResolver struct{}

func (invoiceResolver) Resolve(context.Context, string, string) ai.Resolution {
	return ai.Resolution{
		Intent:     ai.IntentCreateInvoice,
		Confidence: 0.9,
		Parameters: map[string]any{"clientName": "ABC Company", "amount": "500", "description": "website design"},
	}
}

type sentMessage struct{ to, text string }

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *recordingSender) Send(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to, text})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type fixture struct {
	handler  http.Handler
	whatsapp *recordingSender
	telegram *recordingSender
}

func newFixture(t *testing.T, opts web.Options) *fixture {
	t.Helper()
	repo := memory.New(core.StandardUserDefaults)
	svc := app.NewAppService(repo, invoiceResolver{}, workflow.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	f := &fixture{whatsapp: &recordingSender{}, telegram: &recordingSender{}}
	opts.WhatsApp = f.whatsapp
	opts.Telegram = f.telegram
	h, err := web.NewHandler(svc, opts, nil)
	require.NoError(t, err)
	f.handler = h
	return f
}

func (f *fixture) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, web.Options{})
	rec := f.do(http.MethodGet, "/api/health", "", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = f.do(http.MethodGet, "/api/health", "", http.Header{"X-Request-Id": {"<script>"}})
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChat(t *testing.T) {
	f := newFixture(t, web.Options{})

	rec := f.do(http.MethodPost, "/api/chat", `{"user":"web-1","message":"Invoice ABC Company R500"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply app.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.Result.Success)
	assert.Equal(t, ai.IntentCreateInvoice, reply.Intent)
	assert.Contains(t, reply.Text, "INV-0001")

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", `{"user":"web-1","message":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", `{"user":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

func TestChat_BearerAuth(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(t, web.Options{JWTSecret: secret})

	rec := f.do(http.MethodPost, "/api/chat", `{"user":"web-1","message":"hi"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, http.Header{"Authorization": {"Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "web-42",
		"name": "Thandi",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	rec = f.do(http.MethodPost, "/api/chat", `{"message":"Invoice ABC Company R500"}`, http.Header{"Authorization": {"Bearer " + signed}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "INV-0001")
}

func TestWhatsAppVerify(t *testing.T) {
	f := newFixture(t, web.Options{WhatsAppVerifyToken: "hush"})

	rec := f.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=hush&hub.challenge=1158201444", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())

	rec = f.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWhatsAppWebhook(t *testing.T) {
	f := newFixture(t, web.Options{})
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"contacts":[{"wa_id":"27820000001","profile":{"name":"Sipho"}}],
		"messages":[
			{"from":"27820000001","type":"text","text":{"body":"Invoice ABC Company R500"}},
			{"from":"27820000001","type":"image"}
		]}}]}]}`

	rec := f.do(http.MethodPost, "/webhooks/whatsapp", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sent := f.whatsapp.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "27820000001", sent[0].to)
	assert.Contains(t, sent[0].text, "INV-0001")
	assert.Contains(t, sent[1].text, "only read text")

	// Delivery receipts carry no messages.
	rec = f.do(http.MethodPost, "/webhooks/whatsapp", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.whatsapp.messages(), 2)
}

func TestTelegramWebhook(t *testing.T) {
	f := newFixture(t, web.Options{})
	body := `{"update_id":1,"message":{"message_id":7,"from":{"id":5551,"first_name":"Lerato"},"chat":{"id":-100200},"text":"Invoice ABC Company R500"}}`

	rec := f.do(http.MethodPost, "/webhooks/telegram", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := f.telegram.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "-100200", sent[0].to)
	assert.Contains(t, sent[0].text, "INV-0001")

	rec = f.do(http.MethodPost, "/webhooks/telegram", `{"update_id":2,"edited_message":{}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.telegram.messages(), 1)
}

func TestWebhookRateLimitPerSender(t *testing.T) {
	f := newFixture(t, web.Options{RateLimit: "1-M"})
	body := `{"update_id":1,"message":{"from":{"id":9},"chat":{"id":9},"text":"hi"}}`

	f.do(http.MethodPost, "/webhooks/telegram", body, nil)
	f.do(http.MethodPost, "/webhooks/telegram", body, nil)
	sent := f.telegram.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].text, "faster than I can keep up")
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, web.Options{RateLimit: "2-M"})
	body := `{"user":"web-1","message":"hi"}`

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/chat", body, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/chat", body, nil).Code)
	rec := f.do(http.MethodPost, "/api/chat", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestRunWorkflowEndpoint(t *testing.T) {
	f := newFixture(t, web.Options{})
	body := `{"user":"web-1","workflow":{"name":"month end","steps":[
		{"kind":"create_invoice","params":{"clientName":"ABC Company","amount":"500","description":"website design"}},
		{"kind":"mark_invoice_paid","params":{"invoiceNumber":"INV-0001"}},
		{"kind":"generate_report","params":{"reportType":"vat"}}
	]}}`

	rec := f.do(http.MethodPost, "/api/workflows", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exec struct {
		Status         string         `json:"status"`
		Success        bool           `json:"success"`
		CompletedSteps int            `json:"completed_steps"`
		Errors         map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.True(t, exec.Success)
	assert.Equal(t, "COMPLETED", exec.Status)
	assert.Equal(t, 3, exec.CompletedSteps)

	rec = f.do(http.MethodPost, "/api/workflows", `{"user":"web-1","workflow":{"steps":[{"kind":"refund","params":{}}]}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(app.CodeValidation))
}

func TestNewHandler_BadRateLimit(t *testing.T) {
	repo := memory.New(core.StandardUserDefaults)
	svc := app.NewAppService(repo, invoiceResolver{}, workflow.DefaultConfig(), nil)
	_, err := web.NewHandler(svc, web.Options{RateLimit: "lots"}, nil)
	assert.Error(t, err)
}
