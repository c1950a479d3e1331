package ws

import (
	"time"

	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/session"
)

// Close codes. 1000 is the normal close; the 4xxx codes mirror the public
// client contract.
const (
	CloseNormal       = 1000
	CloseUnauthorized = 4001
	CloseInvalidShare = 4004
)

// Owner commands.

type commandEnvelope struct {
	Command string `json:"command"`
}

type startTranscriptionCommand struct {
	TargetLanguage  string `json:"target_language"`
	VoiceID         string `json:"voice_id"`
	SubtitleEnabled *bool  `json:"subtitle_enabled"`
	FontStyle       string `json:"font_style"`
}

type updateSettingsCommand struct {
	TargetLanguage  *string `json:"target_language"`
	VoiceID         *string `json:"voice_id"`
	SubtitleEnabled *bool   `json:"subtitle_enabled"`
	FontStyle       *string `json:"font_style"`
}

// Viewer commands.

type setLanguageCommand struct {
	Language string `json:"language"`
}

type viewerSettingsCommand struct {
	FontFamily        *string  `json:"font_family"`
	FontSize          *int     `json:"font_size"`
	Position          *string  `json:"position"`
	BackgroundOpacity *float64 `json:"background_opacity"`
}

// Events.

type settingsPayload struct {
	TargetLanguage  string `json:"target_language"`
	SubtitleEnabled bool   `json:"subtitle_enabled"`
	FontStyle       string `json:"font_style"`
}

func settingsFrom(s registry.Settings) settingsPayload {
	return settingsPayload{
		TargetLanguage:  s.TargetLanguage,
		SubtitleEnabled: s.SubtitleEnabled,
		FontStyle:       s.FontStyle,
	}
}

type sessionStartedEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Settings  settingsPayload `json:"settings"`
}

type sessionStoppedEvent struct {
	Type string `json:"type"`
}

type settingsUpdatedEvent struct {
	Type     string          `json:"type"`
	Settings settingsPayload `json:"settings"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type transcriptionErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type originalPayload struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

type translatedPayload struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type translationEvent struct {
	Type             string            `json:"type"`
	Original         originalPayload   `json:"original"`
	Translation      translatedPayload `json:"translation"`
	SubtitleEnabled  bool              `json:"subtitle_enabled"`
	FontStyle        string            `json:"font_style"`
	AudioURL         string            `json:"audio_url,omitempty"`
	AudioUnavailable bool              `json:"audio_unavailable,omitempty"`
}

func translationEventFrom(res session.Result) translationEvent {
	return translationEvent{
		Type: "translation",
		Original: originalPayload{
			Text:     res.OriginalText,
			Language: res.OriginalLanguage,
			Start:    res.Start,
			End:      res.End,
		},
		Translation: translatedPayload{
			Text:     res.TranslatedText,
			Language: res.TargetLanguage,
		},
		SubtitleEnabled:  res.SubtitleEnabled,
		FontStyle:        res.FontStyle,
		AudioURL:         res.AudioURL,
		AudioUnavailable: res.AudioUnavailable,
	}
}

func newErrorEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}

// Viewer events.

type languageOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type sessionInfoEvent struct {
	Type            string           `json:"type"`
	SessionName     string           `json:"session_name"`
	Languages       []languageOption `json:"languages"`
	CurrentLanguage string           `json:"current_language"`
}

type viewerLanguageUpdatedEvent struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

type viewerSettingsUpdatedEvent struct {
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
}

type historyItem struct {
	Original    translatedPayload `json:"original"`
	Translation translatedPayload `json:"translation"`
	Timestamp   string            `json:"timestamp"`
}

type translationHistoryEvent struct {
	Type    string        `json:"type"`
	History []historyItem `json:"history"`
}

func historyEventFrom(entries []repository.HistoryEntry) translationHistoryEvent {
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			Original:    translatedPayload{Text: e.OriginalText, Language: e.SourceLanguage},
			Translation: translatedPayload{Text: e.TranslatedText, Language: e.TargetLanguage},
			Timestamp:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	return translationHistoryEvent{Type: "translation_history", History: items}
}

// supportedLanguages is the static viewer-facing language list.
var supportedLanguages = []languageOption{
	{Code: "en", Name: "English"},
	{Code: "fr", Name: "French"},
	{Code: "es", Name: "Spanish"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
}
