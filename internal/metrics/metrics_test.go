package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerServesCounters(t *testing.T) {
	m := New()
	m.IncSessionsStarted()
	m.IncSessionsStarted()
	m.IncSegments()
	m.AddDroppedChunks(3)

	gaugeUpdated := false
	h := m.Handler(func() {
		gaugeUpdated = true
		m.SetActiveSessions(1)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !gaugeUpdated {
		t.Fatal("expected gauge refresh before scrape")
	}
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	out := string(body)
	for _, want := range []string{
		"livecaption_sessions_started_total 2",
		"livecaption_segments_total 1",
		"livecaption_dropped_audio_chunks_total 3",
		"livecaption_active_sessions 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
