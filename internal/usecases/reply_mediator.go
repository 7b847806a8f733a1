package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leadbridge/internal/entities"
	"leadbridge/internal/interfaces"
)

const DefaultCompletionTimeout = 30 * time.Second

// LeadContext is what is known about the customer so far.
type LeadContext struct {
	Name     string
	Phone    string
	Question string
}

// ReplyMediator turns conversation context into one completion request and
// degrades every failure to "no reply".
type ReplyMediator struct {
	client       interfaces.CompletionClient
	enabled      bool
	systemPrompt string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewReplyMediator returns a mediator that never calls out when enabled is
// false or client is nil.
func NewReplyMediator(client interfaces.CompletionClient, enabled bool, systemPrompt string, timeout time.Duration, logger *slog.Logger) *ReplyMediator {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return &ReplyMediator{
		client:       client,
		enabled:      enabled && client != nil,
		systemPrompt: systemPrompt,
		timeout:      timeout,
		logger:       logger.With("component", "reply_mediator"),
	}
}

func (m *ReplyMediator) Enabled() bool {
	return m.enabled
}

// Reply asks for an automated answer to text. The boolean is false when no
// reply should be sent.
func (m *ReplyMediator) Reply(ctx context.Context, customerName, text string, lead LeadContext) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return m.complete(ctx, "reply", []entities.ChatMessage{
		{Role: "system", Content: m.systemPrompt},
		{Role: "user", Content: buildReplyPrompt(customerName, text, lead)},
	})
}

// Summarize runs a one-off completion with its own system instruction.
func (m *ReplyMediator) Summarize(ctx context.Context, systemPrompt, prompt string) (string, bool) {
	return m.complete(ctx, "summary", []entities.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
}

func (m *ReplyMediator) complete(ctx context.Context, purpose string, messages []entities.ChatMessage) (string, bool) {
	if !m.enabled {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	reply, err := m.client.Complete(ctx, messages)
	if err != nil {
		m.logger.Error("completion failed", "purpose", purpose, "error", err, "elapsed", time.Since(start))
		return "", false
	}
	if reply == "" {
		m.logger.Warn("completion returned empty content", "purpose", purpose)
		return "", false
	}
	return reply, true
}

func buildReplyPrompt(customerName, text string, lead LeadContext) string {
	return fmt.Sprintf("Customer name: %s\nPhone: %s\nInitial request: %s\nCustomer message now: %s",
		valueOr(customerName, "unknown"),
		valueOr(lead.Phone, "not provided"),
		valueOr(lead.Question, "not provided"),
		text,
	)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
