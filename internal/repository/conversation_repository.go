package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
	"leadbridge/internal/interfaces"
)

var ErrNotFound = errors.New("not found")

// NewConversationStore opens the store named by location: a postgres:// or
// postgresql:// URL selects PostgreSQL, anything else is a SQLite file path.
func NewConversationStore(ctx context.Context, location string, logger *slog.Logger) (interfaces.ConversationStore, error) {
	if isPostgresURL(location) {
		client, err := infrastructure.NewPostgresClient(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Info("conversation store ready", "driver", "postgres")
		return NewPostgresConversationRepository(client), nil
	}

	client, err := infrastructure.NewSQLiteClient(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	logger.Info("conversation store ready", "driver", "sqlite", "path", location)
	return NewSQLiteConversationRepository(client), nil
}

func isPostgresURL(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

// nullableJSON maps an empty blob to SQL NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func reverseMessages(msgs []entities.StoredMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
