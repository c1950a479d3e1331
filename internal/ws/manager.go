package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aktivelabs/livecaption/internal/config"
	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/session"
	"github.com/aktivelabs/livecaption/internal/storage"
)

// Manager owns the lifecycle of owner and viewer realtime connections.
type Manager struct {
	cfg         *config.Config
	registry    *registry.Registry
	recognizer  provider.Recognizer
	translator  provider.Translator
	synthesizer provider.Synthesizer
	store       storage.AudioStore
	repo        repository.Repository
	hub         *Hub
	met         *metrics.Metrics
	upgrader    websocket.Upgrader
}

func NewManager(
	cfg *config.Config,
	reg *registry.Registry,
	recognizer provider.Recognizer,
	translator provider.Translator,
	synthesizer provider.Synthesizer,
	store storage.AudioStore,
	repo repository.Repository,
	hub *Hub,
	met *metrics.Metrics,
) *Manager {
	return &Manager{
		cfg:         cfg,
		registry:    reg,
		recognizer:  recognizer,
		translator:  translator,
		synthesizer: synthesizer,
		store:       store,
		repo:        repo,
		hub:         hub,
		met:         met,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the app origin; token checks
			// happen after the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleOwner upgrades and runs an owner connection on /ws/translate.
func (m *Manager) HandleOwner(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("owner upgrade failed", "error", err)
		return
	}
	sock := newSocket(conn)

	user, saveHistory, defaultLang, ok := m.authorizeOwner(r)
	if !ok {
		sock.CloseWithCode(CloseUnauthorized, "unauthorized")
		return
	}

	o := &ownerConn{
		m:               m,
		sender:          sock,
		user:            user,
		saveHistory:     saveHistory,
		defaultLanguage: defaultLang,
		settings: registry.Settings{
			TargetLanguage:  defaultLang,
			SubtitleEnabled: true,
			FontStyle:       "default",
		},
	}
	slog.Info("owner connected", "user_id", user.ID)
	defer m.closeOwner(o)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("owner read loop ended", "error", err, "user_id", user.ID)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			m.dispatchOwnerCommand(o, payload)
		case websocket.BinaryMessage:
			m.handleOwnerBinary(o, payload)
		}
	}
}

func (m *Manager) authorizeOwner(r *http.Request) (*repository.User, bool, string, bool) {
	token := bearerToken(r)
	if token == "" {
		return nil, false, "", false
	}

	ctx, cancel := context.WithTimeout(r.Context(), collaboratorTimeout)
	defer cancel()

	user, err := m.repo.AuthenticateToken(ctx, token)
	if err != nil {
		slog.Error("owner authentication lookup failed", "error", err)
		return nil, false, "", false
	}
	if user == nil {
		return nil, false, "", false
	}
	active, err := m.repo.IsSubscriptionActive(ctx, user.ID)
	if err != nil {
		slog.Error("subscription lookup failed", "error", err, "user_id", user.ID)
		return nil, false, "", false
	}
	if !active {
		return nil, false, "", false
	}

	saveHistory := false
	defaultLang := m.cfg.DefaultTargetLanguage
	settings, err := m.repo.GetUserSettings(ctx, user.ID)
	if err != nil {
		slog.Warn("user settings lookup failed; using defaults", "error", err, "user_id", user.ID)
	} else if settings != nil {
		saveHistory = settings.SaveHistory
		if settings.DefaultTargetLanguage != "" {
			defaultLang = settings.DefaultTargetLanguage
		}
	}
	return user, saveHistory, defaultLang, true
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// HandleViewer upgrades and runs a viewer connection on
// /ws/subtitles/{token}.
func (m *Manager) HandleViewer(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("viewer upgrade failed", "error", err)
		return
	}
	sock := newSocket(conn)

	share, ok := m.lookupShare(r.Context(), token)
	if !ok {
		sock.CloseWithCode(CloseInvalidShare, "invalid or expired session")
		return
	}

	v := &viewer{
		id:      uuid.NewString(),
		token:   token,
		share:   share,
		sender:  sock,
		results: make(chan session.Result, viewerQueueCapacity),
	}
	m.registerViewer(r, v)
	defer m.closeViewer(v)

	v.sender.Send(sessionInfoEvent{
		Type:            "session_info",
		SessionName:     share.Title,
		Languages:       supportedLanguages,
		CurrentLanguage: m.cfg.DefaultTargetLanguage,
	})

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("viewer read loop ended", "error", err, "viewer_id", v.id)
			return
		}
		if msgType == websocket.TextMessage {
			m.dispatchViewerCommand(v, payload)
		}
	}
}

func (m *Manager) lookupShare(ctx context.Context, token string) (*repository.SharedSession, bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	share, err := m.repo.GetSharedSessionByToken(lookupCtx, token)
	if err != nil {
		slog.Error("shared session lookup failed", "error", err, "token", token)
		return nil, false
	}
	if share == nil || !share.Active || share.IsExpired(time.Now()) {
		return nil, false
	}
	if err := m.repo.IncrementViewCount(lookupCtx, token); err != nil {
		slog.Warn("failed to increment view count", "error", err, "token", token)
	}
	return share, true
}

func (m *Manager) registerViewer(r *http.Request, v *viewer) {
	m.hub.join(v.token, v.share.OwnerID, v)
	go m.hub.deliverLoop(v)
	m.met.IncViewerConnections()

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.repo.UpsertViewerActivity(ctx, repository.ViewerActivity{
		Token:     v.token,
		ViewerID:  v.id,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		SeenAt:    time.Now(),
	}); err != nil {
		slog.Warn("failed to record viewer connection", "error", err, "viewer_id", v.id)
	}
	slog.Info("viewer connected", "viewer_id", v.id, "token", v.token)
}

func (m *Manager) closeViewer(v *viewer) {
	m.hub.leave(v.token, v)
	v.sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.repo.TouchViewer(ctx, v.token, v.id, time.Now()); err != nil {
		slog.Warn("failed to record viewer disconnect", "error", err, "viewer_id", v.id)
	}
	slog.Info("viewer disconnected", "viewer_id", v.id, "token", v.token)
}
