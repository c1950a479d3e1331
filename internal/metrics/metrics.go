package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live caption
// pipeline.
type Metrics struct {
	registry            *prometheus.Registry
	sessionsStarted     prometheus.Counter
	sessionsEnded       prometheus.Counter
	sessionErrors       prometheus.Counter
	segmentsTotal       prometheus.Counter
	translationsTotal   prometheus.Counter
	translationFailures prometheus.Counter
	synthesisFailures   prometheus.Counter
	droppedChunksTotal  prometheus.Counter
	viewerConnections   prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates and registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_sessions_started_total",
		Help: "Total number of transcription sessions started",
	})
	sessionsEnded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_sessions_ended_total",
		Help: "Total number of transcription sessions ended",
	})
	sessionErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_session_errors_total",
		Help: "Total number of sessions that ended in an error state",
	})
	segmentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_segments_total",
		Help: "Total number of transcript segments received from the recognizer",
	})
	translationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_translations_total",
		Help: "Total number of successful segment translations",
	})
	translationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_translation_failures_total",
		Help: "Total number of failed segment translations",
	})
	synthesisFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_synthesis_failures_total",
		Help: "Total number of failed speech synthesis attempts",
	})
	droppedChunksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_dropped_audio_chunks_total",
		Help: "Total number of audio chunks dropped while waiting for the provider",
	})
	viewerConnections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecaption_viewer_connections_total",
		Help: "Total number of viewer connections accepted",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livecaption_active_sessions",
		Help: "Number of live transcription sessions",
	})

	registry.MustRegister(
		sessionsStarted,
		sessionsEnded,
		sessionErrors,
		segmentsTotal,
		translationsTotal,
		translationFailures,
		synthesisFailures,
		droppedChunksTotal,
		viewerConnections,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		sessionsStarted:     sessionsStarted,
		sessionsEnded:       sessionsEnded,
		sessionErrors:       sessionErrors,
		segmentsTotal:       segmentsTotal,
		translationsTotal:   translationsTotal,
		translationFailures: translationFailures,
		synthesisFailures:   synthesisFailures,
		droppedChunksTotal:  droppedChunksTotal,
		viewerConnections:   viewerConnections,
		activeSessions:      activeSessions,
	}
}

func (m *Metrics) IncSessionsStarted() { m.sessionsStarted.Inc() }

func (m *Metrics) IncSessionsEnded() { m.sessionsEnded.Inc() }

func (m *Metrics) IncSessionErrors() { m.sessionErrors.Inc() }

func (m *Metrics) IncSegments() { m.segmentsTotal.Inc() }

func (m *Metrics) IncTranslations() { m.translationsTotal.Inc() }

func (m *Metrics) IncTranslationFailures() { m.translationFailures.Inc() }

func (m *Metrics) IncSynthesisFailures() { m.synthesisFailures.Inc() }

func (m *Metrics) AddDroppedChunks(n int) { m.droppedChunksTotal.Add(float64(n)) }

func (m *Metrics) IncViewerConnections() { m.viewerConnections.Inc() }

func (m *Metrics) SetActiveSessions(n int) { m.activeSessions.Set(float64(n)) }

// Handler returns an http.Handler that serves the metrics. updateGauges runs
// before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
