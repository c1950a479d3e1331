package repository

import (
	"context"
	"time"
)

type InsertHistoryInput struct {
	OwnerID        string
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	AudioURL       string
}

// AccountRepository answers authorization questions for owner connections.
// Lookups return (nil, nil) when the subject does not exist; errors mean the
// lookup itself failed.
type AccountRepository interface {
	AuthenticateToken(ctx context.Context, token string) (*User, error)
	IsSubscriptionActive(ctx context.Context, userID string) (bool, error)
	GetUserSettings(ctx context.Context, userID string) (*UserSettings, error)
}

type HistoryRepository interface {
	InsertHistory(ctx context.Context, input InsertHistoryInput) error
	RecentHistoryByOwner(ctx context.Context, ownerID string, limit int) ([]HistoryEntry, error)
}

type UsageRepository interface {
	RecordSessionStart(ctx context.Context, ownerID, sessionID string) error
	RecordSessionEnd(ctx context.Context, ownerID, sessionID string) error
	RecordSegmentUsage(ctx context.Context, usage SegmentUsage) error
}

type SharedSessionRepository interface {
	GetSharedSessionByToken(ctx context.Context, token string) (*SharedSession, error)
	IncrementViewCount(ctx context.Context, token string) error
	UpsertViewerActivity(ctx context.Context, activity ViewerActivity) error
	TouchViewer(ctx context.Context, token, viewerID string, seenAt time.Time) error
}

type Repository interface {
	AccountRepository
	HistoryRepository
	UsageRepository
	SharedSessionRepository
}
