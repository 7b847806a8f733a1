package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
)

// PostgresConversationRepository is the PostgreSQL flavour of the store.
type PostgresConversationRepository struct {
	client *infrastructure.PostgresClient
	mu     sync.Mutex
}

func NewPostgresConversationRepository(client *infrastructure.PostgresClient) *PostgresConversationRepository {
	return &PostgresConversationRepository{client: client}
}

func (r *PostgresConversationRepository) SaveClient(ctx context.Context, profile entities.ClientProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.client.Pool.Exec(ctx, `
		INSERT INTO clients (channel, user_id, name, phone, profile_json, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (channel, user_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, clients.name),
			phone = COALESCE(EXCLUDED.phone, clients.phone),
			profile_json = COALESCE(EXCLUDED.profile_json, clients.profile_json),
			updated_at = EXCLUDED.updated_at
	`, string(profile.Channel), profile.UserID, profile.Name, profile.Phone,
		nullableJSON(profile.ProfileMetadata), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert client %s/%s: %w", profile.Channel, profile.UserID, err)
	}
	return nil
}

func (r *PostgresConversationRepository) GetClient(ctx context.Context, channel entities.Channel, userID string) (*entities.ClientProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &entities.ClientProfile{Channel: channel, UserID: userID}
	var profile []byte
	err := r.client.Pool.QueryRow(ctx, `
		SELECT name, phone, profile_json, updated_at FROM clients WHERE channel = $1 AND user_id = $2
	`, string(channel), userID).Scan(&p.Name, &p.Phone, &profile, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s/%s: %w", channel, userID, err)
	}
	if len(profile) > 0 {
		p.ProfileMetadata = json.RawMessage(profile)
	}
	return p, nil
}

func (r *PostgresConversationRepository) AddMessage(ctx context.Context, channel entities.Channel, userID string, role entities.Role, content string, meta json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.client.Pool.Exec(ctx, `
		INSERT INTO messages (channel, user_id, role, content, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, NOW())
	`, string(channel), userID, string(role), content, nullableJSON(meta))
	if err != nil {
		return fmt.Errorf("insert message %s/%s: %w", channel, userID, err)
	}
	return nil
}

func (r *PostgresConversationRepository) GetRecentMessages(ctx context.Context, channel entities.Channel, userID string, limit int) ([]entities.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.client.Pool.Query(ctx, `
		SELECT id, role, content, meta_json, created_at
		FROM messages
		WHERE channel = $1 AND user_id = $2
		ORDER BY id DESC
		LIMIT $3
	`, string(channel), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages %s/%s: %w", channel, userID, err)
	}
	defer rows.Close()

	var msgs []entities.StoredMessage
	for rows.Next() {
		m := entities.StoredMessage{Channel: channel, UserID: userID}
		var (
			role string
			meta []byte
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = entities.Role(role)
		if len(meta) > 0 {
			m.Meta = json.RawMessage(meta)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	reverseMessages(msgs)
	return msgs, nil
}

func (r *PostgresConversationRepository) LoadState(ctx context.Context, channel entities.Channel, userID string) (*entities.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := entities.ConversationState{Channel: channel, UserID: userID}
	var (
		phase      string
		transcript []byte
	)
	err := r.client.Pool.QueryRow(ctx, `
		SELECT conversation_id, phase, collected_name, collected_phone, collected_question, transcript_json, updated_at
		FROM conversation_states WHERE channel = $1 AND user_id = $2
	`, string(channel), userID).Scan(&state.ConversationID, &phase, &state.CollectedName,
		&state.CollectedPhone, &state.CollectedQuestion, &transcript, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s/%s: %w", channel, userID, err)
	}

	state.Phase = entities.Phase(phase)
	if err := json.Unmarshal(transcript, &state.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript %s/%s: %w", channel, userID, err)
	}
	return &state, nil
}

func (r *PostgresConversationRepository) SaveState(ctx context.Context, state *entities.ConversationState) error {
	transcript, err := marshalTranscript(state.Transcript)
	if err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.client.Pool.Exec(ctx, `
		INSERT INTO conversation_states
			(channel, user_id, conversation_id, phase, collected_name, collected_phone, collected_question, transcript_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		ON CONFLICT (channel, user_id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			phase = EXCLUDED.phase,
			collected_name = EXCLUDED.collected_name,
			collected_phone = EXCLUDED.collected_phone,
			collected_question = EXCLUDED.collected_question,
			transcript_json = EXCLUDED.transcript_json,
			updated_at = EXCLUDED.updated_at
	`, string(state.Channel), state.UserID, state.ConversationID, string(state.Phase),
		state.CollectedName, state.CollectedPhone, state.CollectedQuestion, transcript, state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save state %s/%s: %w", state.Channel, state.UserID, err)
	}
	return nil
}

func (r *PostgresConversationRepository) Close() error {
	r.client.Close()
	return nil
}
