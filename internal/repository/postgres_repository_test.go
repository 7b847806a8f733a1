package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbridge/internal/entities"
)

// Runs against a real server only when LEADBRIDGE_TEST_POSTGRES_URL is set.
func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("LEADBRIDGE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("LEADBRIDGE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := NewConversationStore(ctx, url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer store.Close()

	userID := uuid.NewString()

	require.NoError(t, store.SaveClient(ctx, entities.ClientProfile{Channel: entities.ChannelWhatsApp, UserID: userID, Name: entities.StringPtr("X")}))
	require.NoError(t, store.SaveClient(ctx, entities.ClientProfile{Channel: entities.ChannelWhatsApp, UserID: userID, Phone: entities.StringPtr("555")}))
	client, err := store.GetClient(ctx, entities.ChannelWhatsApp, userID)
	require.NoError(t, err)
	assert.Equal(t, "X", *client.Name)
	assert.Equal(t, "555", *client.Phone)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, store.AddMessage(ctx, entities.ChannelWhatsApp, userID, entities.RoleUser, text, nil))
	}
	msgs, err := store.GetRecentMessages(ctx, entities.ChannelWhatsApp, userID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
	assert.Equal(t, "c", msgs[1].Content)

	require.NoError(t, store.SaveState(ctx, &entities.ConversationState{
		Channel: entities.ChannelWhatsApp, UserID: userID, ConversationID: "c-1", Phase: entities.PhaseAwaitName,
	}))
	state, err := store.LoadState(ctx, entities.ChannelWhatsApp, userID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, entities.PhaseAwaitName, state.Phase)
	assert.Empty(t, state.Transcript)
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, isPostgresURL("postgres://u:p@localhost/db"))
	assert.True(t, isPostgresURL("postgresql://localhost/db"))
	assert.False(t, isPostgresURL("data/conversations.db"))
}
