package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aktivelabs/livecaption/internal/repository"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) AuthenticateToken(ctx context.Context, token string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT u.id, u.username
		 FROM api_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token = $1 AND (t.expires_at IS NULL OR t.expires_at > NOW())`,
		token)
	var u repository.User
	if err := row.Scan(&u.ID, &u.Username); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) IsSubscriptionActive(ctx context.Context, userID string) (bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM subscriptions
		   WHERE user_id = $1 AND active AND (expires_at IS NULL OR expires_at > NOW())
		 )`,
		userID)
	var active bool
	if err := row.Scan(&active); err != nil {
		return false, err
	}
	return active, nil
}

func (r *PostgresRepository) GetUserSettings(ctx context.Context, userID string) (*repository.UserSettings, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, save_history, default_target_language
		 FROM user_settings WHERE user_id = $1`,
		userID)
	var s repository.UserSettings
	if err := row.Scan(&s.UserID, &s.SaveHistory, &s.DefaultTargetLanguage); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) InsertHistory(ctx context.Context, input repository.InsertHistoryInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO translation_history
		   (owner_id, original_text, translated_text, source_language, target_language, audio_url)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		input.OwnerID, input.OriginalText, input.TranslatedText,
		input.SourceLanguage, input.TargetLanguage, input.AudioURL)
	return err
}

func (r *PostgresRepository) RecentHistoryByOwner(ctx context.Context, ownerID string, limit int) ([]repository.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, original_text, translated_text, source_language, target_language, audio_url, created_at
		 FROM translation_history WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.HistoryEntry
	for rows.Next() {
		var e repository.HistoryEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.OriginalText, &e.TranslatedText,
			&e.SourceLanguage, &e.TargetLanguage, &e.AudioURL, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) RecordSessionStart(ctx context.Context, ownerID, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_records (owner_id, session_id, service_type, status)
		 VALUES ($1, $2, 'speech_to_text', 'started')`,
		ownerID, sessionID)
	return err
}

func (r *PostgresRepository) RecordSessionEnd(ctx context.Context, ownerID, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE usage_records SET status = 'completed'
		 WHERE owner_id = $1 AND session_id = $2 AND service_type = 'speech_to_text' AND status = 'started'`,
		ownerID, sessionID)
	return err
}

func (r *PostgresRepository) RecordSegmentUsage(ctx context.Context, usage repository.SegmentUsage) error {
	batch := &pgx.Batch{}
	translationCost := 0.0
	if usage.TranslationOK {
		translationCost = float64(usage.TranslationChars) * repository.TranslationCostPerChar
	}
	batch.Queue(
		`INSERT INTO usage_records (owner_id, session_id, service_type, status, character_count, cost)
		 VALUES ($1, $2, 'translation', $3, $4, $5)`,
		usage.OwnerID, usage.SessionID, usageStatus(usage.TranslationOK), usage.TranslationChars, translationCost)
	if usage.SynthesisAttempted {
		synthesisCost := 0.0
		if usage.SynthesisOK {
			synthesisCost = float64(usage.SynthesisChars) * repository.TextToSpeechCostPerChar
		}
		batch.Queue(
			`INSERT INTO usage_records (owner_id, session_id, service_type, status, character_count, cost)
			 VALUES ($1, $2, 'text_to_speech', $3, $4, $5)`,
			usage.OwnerID, usage.SessionID, usageStatus(usage.SynthesisOK), usage.SynthesisChars, synthesisCost)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func usageStatus(ok bool) string {
	if ok {
		return "completed"
	}
	return "failed"
}

func (r *PostgresRepository) GetSharedSessionByToken(ctx context.Context, token string) (*repository.SharedSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT access_token, owner_id, title, active, expires_at,
		        allow_font_customization, allow_language_selection, view_count, created_at
		 FROM shared_sessions WHERE access_token = $1`,
		token)
	var s repository.SharedSession
	var expiresAt *time.Time
	if err := row.Scan(&s.Token, &s.OwnerID, &s.Title, &s.Active, &expiresAt,
		&s.AllowFontCustomization, &s.AllowLanguageSelection, &s.ViewCount, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.ExpiresAt = expiresAt
	return &s, nil
}

func (r *PostgresRepository) IncrementViewCount(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE shared_sessions SET view_count = view_count + 1 WHERE access_token = $1`,
		token)
	return err
}

func (r *PostgresRepository) UpsertViewerActivity(ctx context.Context, activity repository.ViewerActivity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO shared_session_viewers (access_token, viewer_id, language, ip_address, user_agent, last_activity)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		 ON CONFLICT (access_token, viewer_id) DO UPDATE
		   SET language = COALESCE(NULLIF(EXCLUDED.language, ''), shared_session_viewers.language),
		       last_activity = EXCLUDED.last_activity`,
		activity.Token, activity.ViewerID, activity.Language,
		activity.IPAddress, activity.UserAgent, activity.SeenAt)
	return err
}

func (r *PostgresRepository) TouchViewer(ctx context.Context, token, viewerID string, seenAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE shared_session_viewers SET last_activity = $3
		 WHERE access_token = $1 AND viewer_id = $2`,
		token, viewerID, seenAt)
	return err
}
