package repository

import "time"

type User struct {
	ID       string
	Username string
}

type UserSettings struct {
	UserID                string
	SaveHistory           bool
	DefaultTargetLanguage string
}

type SharedSession struct {
	Token                  string
	OwnerID                string
	Title                  string
	Active                 bool
	ExpiresAt              *time.Time
	AllowFontCustomization bool
	AllowLanguageSelection bool
	ViewCount              int
	CreatedAt              time.Time
}

func (s *SharedSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

type HistoryEntry struct {
	ID             string
	OwnerID        string
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	AudioURL       string
	CreatedAt      time.Time
}

type ServiceType string

const (
	ServiceSpeechToText ServiceType = "speech_to_text"
	ServiceTranslation  ServiceType = "translation"
	ServiceTextToSpeech ServiceType = "text_to_speech"
)

// Per-character pricing used for usage records.
const (
	TranslationCostPerChar  = 0.000001
	TextToSpeechCostPerChar = 0.000015
)

// SegmentUsage captures the billable outcome of one fanout segment,
// including partial outcomes such as a successful translation followed by a
// failed synthesis.
type SegmentUsage struct {
	OwnerID            string
	SessionID          string
	TranslationChars   int
	TranslationOK      bool
	SynthesisChars     int
	SynthesisAttempted bool
	SynthesisOK        bool
}

type ViewerActivity struct {
	Token     string
	ViewerID  string
	Language  string
	IPAddress string
	UserAgent string
	SeenAt    time.Time
}
