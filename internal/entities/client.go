package entities

import (
	"encoding/json"
	"time"
)

// ClientProfile is the latest known identity of a customer. Nil fields mean
// "unknown" and never overwrite a stored value.
type ClientProfile struct {
	Channel         Channel         `json:"channel"`
	UserID          string          `json:"user_id"`
	Name            *string         `json:"name,omitempty"`
	Phone           *string         `json:"phone,omitempty"`
	ProfileMetadata json.RawMessage `json:"profile_metadata,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StoredMessage is one row of the per-user message log.
type StoredMessage struct {
	ID        int64           `json:"id"`
	Channel   Channel         `json:"channel"`
	UserID    string          `json:"user_id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditEntry is one line of a daily audit partition.
type AuditEntry struct {
	ConversationID    string  `json:"conversation_id"`
	Channel           Channel `json:"channel"`
	UserID            string  `json:"user_id"`
	Username          string  `json:"username,omitempty"`
	SenderDisplayName string  `json:"sender_display_name"`
	Role              Role    `json:"role"`
	Text              string  `json:"text"`
	Timestamp         string  `json:"timestamp"`
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
