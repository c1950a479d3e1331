package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS api_tokens (
		token TEXT PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		save_history BOOLEAN NOT NULL DEFAULT FALSE,
		default_target_language TEXT NOT NULL DEFAULT 'en'
	)`,
	`CREATE TABLE IF NOT EXISTS translation_history (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		original_text TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		source_language TEXT NOT NULL DEFAULT '',
		target_language TEXT NOT NULL,
		audio_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_translation_history_owner ON translation_history (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL DEFAULT '',
		service_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed',
		character_count INTEGER NOT NULL DEFAULT 0,
		cost NUMERIC(10, 6) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_owner ON usage_records (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS shared_sessions (
		access_token TEXT PRIMARY KEY,
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ,
		allow_font_customization BOOLEAN NOT NULL DEFAULT FALSE,
		allow_language_selection BOOLEAN NOT NULL DEFAULT TRUE,
		view_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shared_session_viewers (
		access_token TEXT NOT NULL REFERENCES shared_sessions(access_token) ON DELETE CASCADE,
		viewer_id TEXT NOT NULL,
		language TEXT,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (access_token, viewer_id)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
