package usecases

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leadbridge/internal/entities"
)

// MessageService is the entry point for both inbound channels.
type MessageService struct {
	machine    *StateMachine
	dispatcher *Dispatcher
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewMessageService(machine *StateMachine, dispatcher *Dispatcher, logger *slog.Logger) *MessageService {
	return &MessageService{
		machine:    machine,
		dispatcher: dispatcher,
		logger:     logger.With("component", "message_service"),
	}
}

// HandleWebhook forwards every message of a delivery to the operator and
// returns how many were relayed. Conversation handling continues in the
// background, one task per sender, in payload order. ignored is true when
// the payload held no messages.
func (s *MessageService) HandleWebhook(ctx context.Context, payload []byte) (forwarded int, ignored bool) {
	msgs := NormalizeWebhook(payload)
	if len(msgs) == 0 {
		return 0, true
	}

	var (
		order  []string
		byUser = make(map[string][]entities.InboundMessage)
	)
	for _, msg := range msgs {
		if s.dispatcher.ForwardToOperator(ctx, RenderOperatorForward(msg)) {
			forwarded++
		}
		if _, seen := byUser[msg.UserID]; !seen {
			order = append(order, msg.UserID)
		}
		byUser[msg.UserID] = append(byUser[msg.UserID], msg)
	}
	s.logger.Info("webhook processed", "messages", len(msgs), "forwarded", forwarded)

	// The request context ends with the response; the tasks must not.
	taskCtx := context.WithoutCancel(ctx)
	for _, userID := range order {
		batch := byUser[userID]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for _, msg := range batch {
				s.machine.Handle(taskCtx, msg)
			}
		}()
	}
	return forwarded, false
}

// HandleTelegramUpdate runs one bot update through the state machine.
func (s *MessageService) HandleTelegramUpdate(ctx context.Context, update tgbotapi.Update) {
	msg, ok := NormalizeTelegramUpdate(update)
	if !ok {
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.machine.Handle(ctx, msg)
}

// Wait blocks until every background conversation task has finished.
func (s *MessageService) Wait() {
	s.wg.Wait()
}
