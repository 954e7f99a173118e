package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"finance-assistant/internal/app"
	"finance-assistant/internal/channel"
	"finance-assistant/internal/core"
	"finance-assistant/internal/logger"
)

// Options configures the HTTP surface. Zero values disable the optional pieces:
// no JWT secret means web callers name themselves, nil senders log replies only.
type Options struct {
	AllowedOrigins      []string
	JWTSecret           string
	RateLimit           string // limiter format, e.g. "60-M"
	WhatsAppVerifyToken string
	WhatsApp            channel.Sender
	Telegram            channel.Sender
}

// Handler holds the ApplicationService and everything the routes need.
type Handler struct {
	svc     app.ApplicationService
	opts    Options
	limiter *limiter.Limiter
	log     *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options, log *zap.Logger) (http.Handler, error) {
	log = logger.OrNop(log)
	if opts.RateLimit == "" {
		opts.RateLimit = "60-M"
	}
	rate, err := limiter.NewRateFromFormatted(opts.RateLimit)
	if err != nil {
		return nil, err
	}
	if opts.WhatsApp == nil {
		opts.WhatsApp = channel.LogSender{Channel: core.ChannelWhatsApp, Log: log}
	}
	if opts.Telegram == nil {
		opts.Telegram = channel.LogSender{Channel: core.ChannelTelegram, Log: log}
	}

	h := &Handler{
		svc:     svc,
		opts:    opts,
		limiter: limiter.New(memory.NewStore(), rate),
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(opts.AllowedOrigins))

	r.Get("/api/health", h.health)

	// Platforms call back from shared addresses; webhooks limit per sender instead.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20))
		r.Get("/whatsapp", h.whatsAppVerify)
		r.Post("/whatsapp", h.whatsAppWebhook)
		r.Post("/telegram", h.telegramWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(h.limiter))
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB
		if opts.JWTSecret != "" {
			r.Use(h.RequireBearer)
		}
		r.Post("/api/chat", h.chat)
		r.Post("/api/workflows", h.runWorkflow)
	})

	return r, nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// allowSender applies the rate limit to one channel sender. It fails open when
// the limiter store errors.
func (h *Handler) allowSender(r *http.Request, key string) bool {
	lctx, err := h.limiter.Get(r.Context(), key)
	if err != nil {
		logger.FromContext(r.Context(), h.log).Warn("rate limiter error", zap.Error(err))
		return true
	}
	return !lctx.Reached
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
