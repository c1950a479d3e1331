package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aktivelabs/livecaption/internal/provider"
)

type Status string

const (
	StatusInitialized Status = "initialized"
	StatusConnecting  Status = "connecting"
	StatusConnected   Status = "connected"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

var statusRank = map[Status]int{
	StatusInitialized: 0,
	StatusConnecting:  1,
	StatusConnected:   2,
	StatusProcessing:  3,
	StatusCompleted:   4,
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// canTransition reports whether a session may move from current to next.
// Statuses only move forward; error is reachable from any non-terminal
// status; terminal statuses are never left.
func canTransition(current, next Status) bool {
	if current.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	return statusRank[next] > statusRank[current]
}

// Settings are the owner-facing display and translation settings of a
// session.
type Settings struct {
	TargetLanguage  string
	VoiceID         string
	SubtitleEnabled bool
	FontStyle       string
}

// WantsAudio reports whether translation results should carry synthesized
// speech: either subtitles are disabled, or a voice was explicitly chosen
// alongside subtitles.
func (s Settings) WantsAudio() bool {
	return !s.SubtitleEnabled || s.VoiceID != ""
}

// Session is one owner's live transcription run. All mutable state is
// guarded by the session's own mutex; different sessions never contend.
type Session struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time

	mu        sync.Mutex
	status    Status
	settings  Settings
	handle    provider.RecognitionHandle
	destroyed bool
	done      chan struct{}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to the session's settings under the session lock
// and returns the result.
func (s *Session) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.settings
}

// SetHandle attaches the provider recognition handle so Destroy can release
// it.
func (s *Session) SetHandle(h provider.RecognitionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// Done is closed when the session is destroyed. In-flight work for the
// session selects on it and discards its result once closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Destroyed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// MarkProcessing moves a connected session to processing. It is a no-op for
// any other status so that concurrent segment arrivals do not race the
// transition.
func (s *Session) MarkProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConnected {
		s.status = StatusProcessing
	}
}

// Registry is the single source of truth for live sessions and their
// provider handles.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create inserts a fresh session in the initialized status. Identifiers are
// never reused while a session is live.
func (r *Registry) Create(ownerID string, settings Settings) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		status:    StatusInitialized,
		settings:  settings,
		done:      make(chan struct{}),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	slog.Info("session created", "session_id", s.ID, "owner_id", ownerID, "target_language", settings.TargetLanguage)
	return s
}

// Get returns the session or nil when unknown.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// UpdateStatus advances a session's status. A violating transition is a
// programming error and panics. Updates for unknown (already destroyed)
// sessions are ignored so in-flight work completes harmlessly.
func (r *Registry) UpdateStatus(id string, next Status) {
	s := r.Get(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	if !canTransition(s.status, next) {
		panic(fmt.Sprintf("invalid session status transition %s -> %s (session %s)", s.status, next, id))
	}
	s.status = next
}

// Destroy removes the session, closes its provider handle best-effort, and
// signals in-flight work to discard results. Safe to call twice and
// concurrently with submissions for the same session.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.destroyed = true
	if !s.status.Terminal() {
		s.status = StatusCompleted
	}
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	close(s.done)

	if handle != nil {
		if err := handle.Close(); err != nil {
			slog.Warn("failed to close recognition handle", "error", err, "session_id", id)
		}
	}
	slog.Info("session destroyed", "session_id", id)
}

// ActiveCount reports the number of live sessions, for metrics gauges.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
