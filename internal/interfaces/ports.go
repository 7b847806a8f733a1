package interfaces

import (
	"context"
	"encoding/json"

	"leadbridge/internal/entities"
)

// CompletionClient sends one chat completion request.
type CompletionClient interface {
	Complete(ctx context.Context, messages []entities.ChatMessage) (string, error)
}

type SendOptions struct {
	Silent                bool
	DisableWebPagePreview bool
}

// Messenger delivers plain text to a destination on one channel.
type Messenger interface {
	SendText(ctx context.Context, to, text string, opts SendOptions) error
}

type DocumentSender interface {
	SendDocument(ctx context.Context, to, path, caption string) error
}

// ConversationStore persists client profiles, the message log and the
// per-user dialogue state.
type ConversationStore interface {
	SaveClient(ctx context.Context, profile entities.ClientProfile) error
	GetClient(ctx context.Context, channel entities.Channel, userID string) (*entities.ClientProfile, error)
	AddMessage(ctx context.Context, channel entities.Channel, userID string, role entities.Role, content string, meta json.RawMessage) error
	GetRecentMessages(ctx context.Context, channel entities.Channel, userID string, limit int) ([]entities.StoredMessage, error)
	// LoadState returns nil, nil when the user has no stored state.
	LoadState(ctx context.Context, channel entities.Channel, userID string) (*entities.ConversationState, error)
	SaveState(ctx context.Context, state *entities.ConversationState) error
	Close() error
}
