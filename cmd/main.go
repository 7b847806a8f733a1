package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leadbridge/internal/config"
	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
	httpapi "leadbridge/internal/interfaces/http"
	"leadbridge/internal/repository"
	"leadbridge/internal/usecases"
)

const (
	operatorSendTimeout = 10 * time.Second
	customerSendTimeout = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		color.Red("configuration error: %v", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	store, err := repository.NewConversationStore(ctx, cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram bot connected", "bot", bot.Self.UserName)

	telegram := infrastructure.NewTelegramClient(bot)
	operator := telegram.WithTimeout(operatorSendTimeout)

	dispatcher := usecases.NewDispatcher(operator, operator, usecases.Destinations{
		Notify:       cfg.Telegram.NotifyChatID,
		Applications: cfg.Telegram.ApplicationsChatID,
		Log:          cfg.Telegram.LogChatID,
		Analytics:    cfg.AnalyticsTarget(),
	}, logger).
		WithCustomerChannel(entities.ChannelTelegram, telegram.WithTimeout(customerSendTimeout))

	if cfg.WhatsApp.Token != "" && cfg.WhatsApp.PhoneNumberID != "" {
		wa := infrastructure.NewWhatsAppBusinessClient(cfg.WhatsApp.APIBase, cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID, customerSendTimeout)
		dispatcher.WithCustomerChannel(entities.ChannelWhatsApp, wa)
	} else {
		logger.Warn("WhatsApp credentials not set, webhook messages will not be answered")
	}

	openRouter := infrastructure.NewOpenRouterClient(cfg.AI, usecases.DefaultCompletionTimeout)
	mediator := usecases.NewReplyMediator(openRouter, cfg.CompletionEnabled(), cfg.AI.SystemPrompt, usecases.DefaultCompletionTimeout, logger)
	summarizer := usecases.NewReplyMediator(openRouter, cfg.CompletionEnabled(), cfg.AI.AnalyticsPrompt, usecases.DefaultCompletionTimeout, logger)
	logger.Info("completions", "auto_reply", mediator.Enabled(), "analytics_summary", summarizer.Enabled())

	audit := repository.NewAuditLog(cfg.Storage.LogDir, cfg.Analytics.Location)
	turns := usecases.NewTurnLogger(audit, store, dispatcher, logger)
	machine := usecases.NewStateMachine(store, infrastructure.NewSessionManager(), mediator, dispatcher, turns, logger)
	service := usecases.NewMessageService(machine, dispatcher, logger)

	scheduler := usecases.NewAnalyticsScheduler(audit, summarizer, dispatcher, usecases.AnalyticsOptions{
		Enabled:      cfg.AnalyticsEnabled(),
		Hour:         cfg.Analytics.Hour,
		Minute:       cfg.Analytics.Minute,
		Location:     cfg.Analytics.Location,
		SystemPrompt: cfg.AI.AnalyticsPrompt,
	}, logger)

	var middleware *httpapi.Middleware
	if cfg.Server.OperatorAPISecret != "" {
		middleware = httpapi.NewMiddleware(cfg.Server.OperatorAPISecret)
	}
	r := gin.Default()
	httpapi.SetupRoutes(r, service, store, cfg.WhatsApp.VerifyToken, middleware, logger)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	poller := infrastructure.NewTelegramPoller(bot, service.HandleTelegramUpdate, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-serverErr:
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	wg.Wait()
	service.Wait()
	logger.Info("stopped")
	return runErr
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func printBanner(cfg *config.Config) {
	bold := color.New(color.FgCyan, color.Bold)
	bold.Println("LeadBridge")

	status := func(name string, on bool) {
		if on {
			color.Green("  ✓ %s", name)
		} else {
			color.Yellow("  - %s (off)", name)
		}
	}
	status("WhatsApp replies", cfg.WhatsApp.Token != "" && cfg.WhatsApp.PhoneNumberID != "")
	status("AI auto-reply", cfg.CompletionEnabled())
	status("daily analytics", cfg.AnalyticsEnabled() && cfg.AnalyticsTarget() != "")
	status("operator API", cfg.Server.OperatorAPISecret != "")
	color.White("  listening on %s, store %s", cfg.Server.HTTPAddr, storeKind(cfg.Storage.DatabasePath))
}

func storeKind(location string) string {
	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		return "postgres"
	}
	return location
}
