package usecases

import (
	"context"
	"encoding/json"
	"log/slog"

	"leadbridge/internal/entities"
	"leadbridge/internal/interfaces"
	"leadbridge/internal/repository"
)

// TurnLogger records one conversation turn everywhere it is kept: the
// in-state transcript, the daily audit partition, the store's message log
// and the log chat.
type TurnLogger struct {
	audit      *repository.AuditLog
	store      interfaces.ConversationStore
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewTurnLogger(audit *repository.AuditLog, store interfaces.ConversationStore, dispatcher *Dispatcher, logger *slog.Logger) *TurnLogger {
	return &TurnLogger{
		audit:      audit,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With("component", "turn_logger"),
	}
}

func (l *TurnLogger) Log(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage, role entities.Role, text string) {
	if text == "" {
		return
	}
	entry := entities.AuditEntry{
		ConversationID:    state.ConversationID,
		Channel:           state.Channel,
		UserID:            state.UserID,
		Username:          msg.Username,
		SenderDisplayName: msg.SenderDisplayName,
		Role:              role,
		Text:              text,
	}
	at, err := l.audit.Append(entry)
	if err != nil {
		l.logger.Error("audit append failed", "conversation_id", state.ConversationID, "error", err)
	}
	state.Transcript = append(state.Transcript, entities.Turn{Role: role, Text: text, Timestamp: at.UTC()})

	meta, _ := json.Marshal(messageMeta(state.ConversationID, msg, role))
	if err := l.store.AddMessage(ctx, state.Channel, state.UserID, role, text, meta); err != nil {
		l.logger.Error("message log append failed", "conversation_id", state.ConversationID, "error", err)
	}

	l.dispatcher.LogPreview(ctx, RenderLogPreview(at, msg.SenderDisplayName, state.UserID, role, text))
}

// messageMeta keeps the provider payload next to the user's own turns.
func messageMeta(conversationID string, msg entities.InboundMessage, role entities.Role) map[string]any {
	meta := map[string]any{"conversation_id": conversationID}
	if role == entities.RoleUser && json.Valid(msg.Raw) {
		meta["raw"] = msg.Raw
	}
	return meta
}
