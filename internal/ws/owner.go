package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/session"
)

const (
	collaboratorTimeout = 10 * time.Second
	recentHistoryLimit  = 10
)

// ownerConn is the state of one authorized owner connection. Message
// handling is serialized by the read loop; provider work happens on the
// session's own goroutines and reaches the client through the write pump.
type ownerConn struct {
	m      *Manager
	sender eventSender
	user   *repository.User

	saveHistory     bool
	defaultLanguage string

	mu       sync.Mutex
	settings registry.Settings
	sess     *registry.Session
	pipeline *session.Pipeline

	teardown sync.Once
}

// session.OwnerNotifier implementation. DeliverResult and the notify
// methods only enqueue onto the write pump.

// DeliverResult holds the connection lock across the enqueue. The stop and
// disconnect paths clear o.sess under the same lock before sending the stop
// acknowledgement, so a result either lands before session_stopped or is
// dropped; it can never trail it.
func (o *ownerConn) DeliverResult(res session.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil || o.sess.ID != res.SessionID {
		return
	}
	o.sender.Send(translationEventFrom(res))
}

func (o *ownerConn) NotifyError(message string) {
	o.sender.Send(newErrorEvent(message))
}

func (o *ownerConn) NotifyTranscriptionError(message string) {
	o.sender.Send(transcriptionErrorEvent{Type: "transcription_error", Error: message})
}

func (m *Manager) dispatchOwnerCommand(o *ownerConn, payload []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		o.NotifyError("Invalid JSON format")
		return
	}
	switch env.Command {
	case "start_transcription":
		m.handleStartTranscription(o, payload)
	case "stop_transcription":
		m.handleStopTranscription(o)
	case "update_settings":
		m.handleUpdateSettings(o, payload)
	default:
		o.NotifyError("Unknown command")
	}
}

func (m *Manager) handleStartTranscription(o *ownerConn, payload []byte) {
	var cmd startTranscriptionCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		o.NotifyError("Invalid start_transcription command")
		return
	}

	o.mu.Lock()
	if o.sess != nil && !o.sess.Destroyed() {
		if !o.sess.Status().Terminal() {
			o.mu.Unlock()
			o.NotifyError("A transcription session is already running")
			return
		}
		// An errored session keeps its record until the owner restarts or
		// disconnects; a fresh start replaces it.
		m.registry.Destroy(o.sess.ID)
		o.sess, o.pipeline = nil, nil
	}

	settings := o.settings
	if cmd.TargetLanguage != "" {
		settings.TargetLanguage = cmd.TargetLanguage
	}
	if settings.TargetLanguage == "" {
		settings.TargetLanguage = o.defaultLanguage
	}
	if cmd.VoiceID != "" {
		settings.VoiceID = cmd.VoiceID
	}
	if cmd.SubtitleEnabled != nil {
		settings.SubtitleEnabled = *cmd.SubtitleEnabled
	}
	if cmd.FontStyle != "" {
		settings.FontStyle = cmd.FontStyle
	}
	if settings.FontStyle == "" {
		settings.FontStyle = "default"
	}
	o.settings = settings

	sess := m.registry.Create(o.user.ID, settings)
	fanout := session.NewFanout(sess, m.translator, m.synthesizer, m.store, m.repo, o, m.hub, m.met, o.saveHistory)
	pipeline := session.NewPipeline(session.PipelineConfig{
		SampleRate:          m.cfg.AudioSampleRateHertz,
		ConnectTimeout:      m.cfg.ProviderConnectTimeout,
		QueueCapacity:       m.cfg.IngestQueueCapacity,
		ReportDroppedChunks: m.cfg.ReportDroppedChunks,
	}, m.recognizer, m.registry, sess, fanout, o, m.met)
	o.sess = sess
	o.pipeline = pipeline
	o.mu.Unlock()

	pipeline.Start()
	m.met.IncSessionsStarted()

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.repo.RecordSessionStart(ctx, o.user.ID, sess.ID); err != nil {
		slog.Error("failed to record session start usage", "error", err, "session_id", sess.ID)
	}

	o.sender.Send(sessionStartedEvent{
		Type:      "session_started",
		SessionID: sess.ID,
		Settings:  settingsFrom(settings),
	})
}

func (m *Manager) handleStopTranscription(o *ownerConn) {
	o.mu.Lock()
	sess, pipeline := o.sess, o.pipeline
	o.sess, o.pipeline = nil, nil
	o.mu.Unlock()
	if sess == nil {
		return
	}

	pipeline.Stop()
	m.registry.Destroy(sess.ID)
	m.met.IncSessionsEnded()

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.repo.RecordSessionEnd(ctx, o.user.ID, sess.ID); err != nil {
		slog.Error("failed to record session end usage", "error", err, "session_id", sess.ID)
	}

	// o.sess was cleared under the lock above, so DeliverResult drops any
	// in-flight result; no translation can follow the stop acknowledgement.
	o.sender.Send(sessionStoppedEvent{Type: "session_stopped"})
}

func (m *Manager) handleUpdateSettings(o *ownerConn, payload []byte) {
	var cmd updateSettingsCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		o.NotifyError("Invalid update_settings command")
		return
	}

	apply := func(s *registry.Settings) {
		if cmd.TargetLanguage != nil {
			s.TargetLanguage = *cmd.TargetLanguage
		}
		if cmd.VoiceID != nil {
			s.VoiceID = *cmd.VoiceID
		}
		if cmd.SubtitleEnabled != nil {
			s.SubtitleEnabled = *cmd.SubtitleEnabled
		}
		if cmd.FontStyle != nil {
			s.FontStyle = *cmd.FontStyle
		}
	}

	o.mu.Lock()
	apply(&o.settings)
	sess := o.sess
	effective := o.settings
	o.mu.Unlock()

	if sess != nil && !sess.Destroyed() {
		effective = sess.UpdateSettings(apply)
	}

	o.sender.Send(settingsUpdatedEvent{Type: "settings_updated", Settings: settingsFrom(effective)})
}

func (m *Manager) handleOwnerBinary(o *ownerConn, chunk []byte) {
	o.mu.Lock()
	pipeline := o.pipeline
	o.mu.Unlock()
	if pipeline == nil {
		// Audio for an unknown session is a no-op.
		return
	}
	pipeline.Submit(chunk)
}

// closeOwner runs the disconnect path exactly once, whatever the trigger.
func (m *Manager) closeOwner(o *ownerConn) {
	o.teardown.Do(func() {
		o.mu.Lock()
		sess, pipeline := o.sess, o.pipeline
		o.sess, o.pipeline = nil, nil
		o.mu.Unlock()

		if sess != nil {
			pipeline.Stop()
			m.registry.Destroy(sess.ID)
			m.met.IncSessionsEnded()
			ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			if err := m.repo.RecordSessionEnd(ctx, o.user.ID, sess.ID); err != nil {
				slog.Error("failed to record session end usage", "error", err, "session_id", sess.ID)
			}
			cancel()
		}
		o.sender.Close()
		slog.Info("owner connection closed", "user_id", o.user.ID)
	})
}
