package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
)

// SQLiteConversationRepository stores conversations in one SQLite file.
// All access goes through a single mutex.
type SQLiteConversationRepository struct {
	client *infrastructure.SQLiteClient
	mu     sync.Mutex
}

func NewSQLiteConversationRepository(client *infrastructure.SQLiteClient) *SQLiteConversationRepository {
	return &SQLiteConversationRepository{client: client}
}

// SaveClient upserts a profile; nil fields keep the stored value.
func (r *SQLiteConversationRepository) SaveClient(ctx context.Context, profile entities.ClientProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.client.DB.ExecContext(ctx, `
		INSERT INTO clients (channel, user_id, name, phone, profile_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, user_id) DO UPDATE SET
			name = COALESCE(excluded.name, clients.name),
			phone = COALESCE(excluded.phone, clients.phone),
			profile_json = COALESCE(excluded.profile_json, clients.profile_json),
			updated_at = excluded.updated_at
	`, string(profile.Channel), profile.UserID, profile.Name, profile.Phone,
		nullableJSON(profile.ProfileMetadata), formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("upsert client %s/%s: %w", profile.Channel, profile.UserID, err)
	}
	return nil
}

func (r *SQLiteConversationRepository) GetClient(ctx context.Context, channel entities.Channel, userID string) (*entities.ClientProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		name, phone, profile sql.NullString
		updatedAt            string
	)
	err := r.client.DB.QueryRowContext(ctx, `
		SELECT name, phone, profile_json, updated_at FROM clients WHERE channel = ? AND user_id = ?
	`, string(channel), userID).Scan(&name, &phone, &profile, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s/%s: %w", channel, userID, err)
	}

	p := &entities.ClientProfile{Channel: channel, UserID: userID, UpdatedAt: parseTime(updatedAt)}
	if name.Valid {
		p.Name = &name.String
	}
	if phone.Valid {
		p.Phone = &phone.String
	}
	if profile.Valid {
		p.ProfileMetadata = json.RawMessage(profile.String)
	}
	return p, nil
}

func (r *SQLiteConversationRepository) AddMessage(ctx context.Context, channel entities.Channel, userID string, role entities.Role, content string, meta json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.client.DB.ExecContext(ctx, `
		INSERT INTO messages (channel, user_id, role, content, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(channel), userID, string(role), content, nullableJSON(meta), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert message %s/%s: %w", channel, userID, err)
	}
	return nil
}

// GetRecentMessages returns up to limit most recent rows, oldest first.
func (r *SQLiteConversationRepository) GetRecentMessages(ctx context.Context, channel entities.Channel, userID string, limit int) ([]entities.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.client.DB.QueryContext(ctx, `
		SELECT id, role, content, meta_json, created_at
		FROM messages
		WHERE channel = ? AND user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(channel), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages %s/%s: %w", channel, userID, err)
	}
	defer rows.Close()

	var msgs []entities.StoredMessage
	for rows.Next() {
		var (
			m         entities.StoredMessage
			role      string
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Channel = channel
		m.UserID = userID
		m.Role = entities.Role(role)
		m.CreatedAt = parseTime(createdAt)
		if meta.Valid {
			m.Meta = json.RawMessage(meta.String)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	reverseMessages(msgs)
	return msgs, nil
}

func (r *SQLiteConversationRepository) LoadState(ctx context.Context, channel entities.Channel, userID string) (*entities.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		state      = entities.ConversationState{Channel: channel, UserID: userID}
		phase      string
		transcript string
		updatedAt  string
	)
	err := r.client.DB.QueryRowContext(ctx, `
		SELECT conversation_id, phase, collected_name, collected_phone, collected_question, transcript_json, updated_at
		FROM conversation_states WHERE channel = ? AND user_id = ?
	`, string(channel), userID).Scan(&state.ConversationID, &phase, &state.CollectedName,
		&state.CollectedPhone, &state.CollectedQuestion, &transcript, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s/%s: %w", channel, userID, err)
	}

	state.Phase = entities.Phase(phase)
	state.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(transcript), &state.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript %s/%s: %w", channel, userID, err)
	}
	return &state, nil
}

func (r *SQLiteConversationRepository) SaveState(ctx context.Context, state *entities.ConversationState) error {
	transcript, err := marshalTranscript(state.Transcript)
	if err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.client.DB.ExecContext(ctx, `
		INSERT INTO conversation_states
			(channel, user_id, conversation_id, phase, collected_name, collected_phone, collected_question, transcript_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, user_id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			phase = excluded.phase,
			collected_name = excluded.collected_name,
			collected_phone = excluded.collected_phone,
			collected_question = excluded.collected_question,
			transcript_json = excluded.transcript_json,
			updated_at = excluded.updated_at
	`, string(state.Channel), state.UserID, state.ConversationID, string(state.Phase),
		state.CollectedName, state.CollectedPhone, state.CollectedQuestion, transcript, formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save state %s/%s: %w", state.Channel, state.UserID, err)
	}
	return nil
}

func (r *SQLiteConversationRepository) Close() error {
	return r.client.Close()
}

func marshalTranscript(turns []entities.Turn) (string, error) {
	if turns == nil {
		turns = []entities.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
