package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}
	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	// Latest known profile per customer
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS clients (
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT,
			phone TEXT,
			profile_json JSONB,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (channel, user_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("create clients table: %w", err)
	}

	// Append-only turn log
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			meta_json JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_channel_user_id ON messages (channel, user_id, id);`)
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_states (
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			collected_name TEXT NOT NULL DEFAULT '',
			collected_phone TEXT NOT NULL DEFAULT '',
			collected_question TEXT NOT NULL DEFAULT '',
			transcript_json JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (channel, user_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("create conversation_states table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
