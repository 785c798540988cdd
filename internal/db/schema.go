package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are executed in order by Initialize. Every statement is
// idempotent so Initialize is safe to run on every process start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id            BIGSERIAL PRIMARY KEY,
		uid           BIGINT NOT NULL DEFAULT 0,
		message_id    TEXT NOT NULL,
		in_reply_to   TEXT NOT NULL DEFAULT '',
		refs          TEXT NOT NULL DEFAULT '',
		thread_id     TEXT NOT NULL,
		from_address  TEXT NOT NULL DEFAULT '',
		to_addresses  TEXT[] NOT NULL DEFAULT '{}',
		cc_addresses  TEXT[] NOT NULL DEFAULT '{}',
		subject       TEXT NOT NULL DEFAULT '',
		body_text     TEXT NOT NULL DEFAULT '',
		body_html     TEXT NOT NULL DEFAULT '',
		sent_at       TIMESTAMPTZ,
		flags         TEXT[] NOT NULL DEFAULT '{}',
		seen          BOOLEAN NOT NULL DEFAULT FALSE,
		processed     BOOLEAN NOT NULL DEFAULT FALSE,
		outbound      BOOLEAN NOT NULL DEFAULT FALSE,
		delivered     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT messages_message_id_key UNIQUE (message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id            BIGSERIAL PRIMARY KEY,
		email_id      BIGINT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
		filename      TEXT NOT NULL DEFAULT '',
		content_type  TEXT NOT NULL DEFAULT 'application/octet-stream',
		size_bytes    BIGINT NOT NULL DEFAULT 0 CHECK (size_bytes >= 0),
		content       BYTEA
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages (thread_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_in_reply_to ON messages (in_reply_to)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_email_id ON attachments (email_id)`,
}

// Initialize creates the schema if it does not exist yet.
func Initialize(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
