package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leadbridge/internal/interfaces"
)

// TelegramClient sends text and files through the operator bot.
type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramClient(bot *tgbotapi.BotAPI) *TelegramClient {
	return &TelegramClient{Bot: bot}
}

// WithTimeout returns a client sharing the bot identity but using its own
// HTTP client bounded by d.
func (t *TelegramClient) WithTimeout(d time.Duration) *TelegramClient {
	clone := *t.Bot
	clone.Client = &http.Client{Timeout: d}
	return &TelegramClient{Bot: &clone}
}

// SendText accepts a numeric chat id or an @channel username.
func (t *TelegramClient) SendText(ctx context.Context, to, text string, opts interfaces.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(to, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(chatID, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(to, text)
	}
	msg.DisableNotification = opts.Silent
	msg.DisableWebPagePreview = opts.DisableWebPagePreview

	if _, err := t.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", to, err)
	}
	return nil
}

func (t *TelegramClient) SendDocument(ctx context.Context, to, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(0, tgbotapi.FilePath(path))
	if chatID, err := strconv.ParseInt(to, 10, 64); err == nil {
		doc.ChatID = chatID
	} else {
		doc.ChannelUsername = to
	}
	doc.Caption = caption

	if _, err := t.Bot.Send(doc); err != nil {
		return fmt.Errorf("telegram document to %s: %w", to, err)
	}
	return nil
}
