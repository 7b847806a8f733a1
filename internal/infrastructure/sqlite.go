package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteClient struct {
	DB *sql.DB
}

// NewSQLiteClient opens (creating if needed) the database file and its parent
// directory, then applies the schema.
func NewSQLiteClient(ctx context.Context, path string) (*SQLiteClient, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	client := &SQLiteClient{DB: db}
	if err := client.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

func (s *SQLiteClient) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS clients (
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT,
			phone TEXT,
			profile_json TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (channel, user_id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			meta_json TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_channel_user_id
			ON messages(channel, user_id, id);

		CREATE TABLE IF NOT EXISTS conversation_states (
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			collected_name TEXT NOT NULL DEFAULT '',
			collected_phone TEXT NOT NULL DEFAULT '',
			collected_question TEXT NOT NULL DEFAULT '',
			transcript_json TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (channel, user_id)
		);
	`
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteClient) Close() error {
	return s.DB.Close()
}
