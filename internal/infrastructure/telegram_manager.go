package infrastructure

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler processes one bot update.
type UpdateHandler func(ctx context.Context, update tgbotapi.Update)

// TelegramPoller long-polls the bot API and runs every update on its own
// goroutine.
type TelegramPoller struct {
	bot     *tgbotapi.BotAPI
	handler UpdateHandler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewTelegramPoller(bot *tgbotapi.BotAPI, handler UpdateHandler, logger *slog.Logger) *TelegramPoller {
	return &TelegramPoller{
		bot:     bot,
		handler: handler,
		logger:  logger.With("component", "telegram_poller"),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *TelegramPoller) Run(ctx context.Context) {
	// Updates queued while the process was down are stale.
	if _, err := p.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		p.logger.Warn("dropping pending updates failed", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := p.bot.GetUpdatesChan(u)

	p.logger.Info("polling started", "bot", p.bot.Self.UserName)

	// Handlers outlive shutdown so in-flight conversations finish.
	handlerCtx := context.WithoutCancel(ctx)

	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			p.logger.Info("polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.handler(handlerCtx, update)
			}()
		}
	}
}
