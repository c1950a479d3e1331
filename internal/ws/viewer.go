package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/session"
)

// viewer is one anonymous read-only subscriber to a shared session.
type viewer struct {
	id     string
	token  string
	share  *repository.SharedSession
	sender eventSender

	mu       sync.Mutex
	language string

	results chan session.Result
}

func (v *viewer) Language() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.language
}

func (v *viewer) setLanguage(lang string) {
	v.mu.Lock()
	v.language = lang
	v.mu.Unlock()
}

// enqueue hands a result to the viewer's delivery worker. Fan-out to
// viewers is best-effort: when the viewer cannot keep up, results are
// dropped rather than stalling the publisher.
func (v *viewer) enqueue(res session.Result) {
	select {
	case v.results <- res:
	default:
		slog.Warn("viewer queue full; dropped result", "viewer_id", v.id, "token", v.token)
	}
}

func (m *Manager) dispatchViewerCommand(v *viewer, payload []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		v.sender.Send(newErrorEvent("Invalid JSON format"))
		return
	}
	switch env.Command {
	case "set_language":
		m.handleViewerSetLanguage(v, payload)
	case "update_settings":
		m.handleViewerUpdateSettings(v, payload)
	case "request_history":
		m.handleViewerRequestHistory(v)
	default:
		v.sender.Send(newErrorEvent("Unknown command"))
	}
}

func (m *Manager) handleViewerSetLanguage(v *viewer, payload []byte) {
	var cmd setLanguageCommand
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Language == "" {
		v.sender.Send(newErrorEvent("Invalid set_language command"))
		return
	}
	if !v.share.AllowLanguageSelection {
		v.sender.Send(newErrorEvent("Language selection not allowed"))
		return
	}
	v.setLanguage(cmd.Language)

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.repo.UpsertViewerActivity(ctx, repository.ViewerActivity{
		Token:    v.token,
		ViewerID: v.id,
		Language: cmd.Language,
		SeenAt:   time.Now(),
	}); err != nil {
		slog.Error("failed to save viewer language", "error", err, "viewer_id", v.id)
	}

	v.sender.Send(viewerLanguageUpdatedEvent{Type: "settings_updated", Language: cmd.Language})
}

func (m *Manager) handleViewerUpdateSettings(v *viewer, payload []byte) {
	var cmd viewerSettingsCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		v.sender.Send(newErrorEvent("Invalid update_settings command"))
		return
	}
	if !v.share.AllowFontCustomization {
		v.sender.Send(newErrorEvent("Font customization not allowed"))
		return
	}

	settings := make(map[string]any)
	if cmd.FontFamily != nil {
		settings["font_family"] = *cmd.FontFamily
	}
	if cmd.FontSize != nil {
		settings["font_size"] = *cmd.FontSize
	}
	if cmd.Position != nil {
		settings["position"] = *cmd.Position
	}
	if cmd.BackgroundOpacity != nil {
		settings["background_opacity"] = *cmd.BackgroundOpacity
	}
	v.sender.Send(viewerSettingsUpdatedEvent{Type: "settings_updated", Settings: settings})
}

func (m *Manager) handleViewerRequestHistory(v *viewer) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	entries, err := m.repo.RecentHistoryByOwner(ctx, v.share.OwnerID, recentHistoryLimit)
	if err != nil {
		slog.Error("failed to load translation history", "error", err, "token", v.token)
		v.sender.Send(newErrorEvent("History is unavailable"))
		return
	}
	v.sender.Send(historyEventFrom(entries))
}
