package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	webAdapter "finance-assistant/internal/adapters/web"
	"finance-assistant/internal/bootstrap"
	"finance-assistant/internal/channel"
	"finance-assistant/internal/config"
	"finance-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "error", Format: "json"}).Fatal("config", zap.Error(err))
	}
	log := logger.New(logger.ForEnvironment(cfg.Environment, cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer cleanup()

	opts := webAdapter.Options{
		AllowedOrigins:      cfg.AllowedOrigins,
		JWTSecret:           cfg.JWTSecret,
		RateLimit:           cfg.RateLimit,
		WhatsAppVerifyToken: cfg.WhatsAppVerifyToken,
	}
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		opts.WhatsApp = channel.NewWhatsAppSender(channel.WhatsAppConfig{
			APIBase:       cfg.WhatsAppAPIBase,
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		}, nil)
	}
	if cfg.TelegramBotToken != "" {
		opts.Telegram = channel.NewTelegramSender(channel.TelegramConfig{
			APIBase:  cfg.TelegramAPIBase,
			BotToken: cfg.TelegramBotToken,
		}, nil)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, web callers identify themselves by the user field")
	}

	handler, err := webAdapter.NewHandler(svc, opts, log)
	if err != nil {
		log.Fatal("http handler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server", zap.Error(err))
	}
	log.Info("server stopped")
}
