package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestSynthesizer(serverURL string, cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	s := NewElevenLabsSynthesizer(cfg).(*ElevenLabsSynthesizer)
	s.baseURL = serverURL
	return s
}

func TestSynthesize_MissingAPIKey(t *testing.T) {
	s := NewElevenLabsSynthesizer(ElevenLabsConfig{DefaultVoiceID: "voice-1"})
	if _, err := s.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestSynthesize_NoVoiceConfigured(t *testing.T) {
	s := NewElevenLabsSynthesizer(ElevenLabsConfig{APIKey: "key"})
	if _, err := s.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error when no voice is configured")
	}
}

func TestSynthesize_Success(t *testing.T) {
	var gotPath, gotAPIKey, gotText, gotModel string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("xi-api-key")
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		gotText = req.Text
		gotModel = req.ModelID
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3bytes"))
	}))
	defer server.Close()

	s := newTestSynthesizer(server.URL, ElevenLabsConfig{APIKey: "key", DefaultVoiceID: "voice-1", ModelID: "eleven_turbo_v2"})
	audio, err := s.Synthesize(context.Background(), "bonjour", "")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(audio) != "mp3bytes" {
		t.Fatalf("unexpected audio body: %s", audio)
	}
	if !strings.HasSuffix(gotPath, "/text-to-speech/voice-1") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAPIKey != "key" {
		t.Fatalf("unexpected api key header: %s", gotAPIKey)
	}
	if gotText != "bonjour" || gotModel != "eleven_turbo_v2" {
		t.Fatalf("unexpected request payload: %s / %s", gotText, gotModel)
	}
}

func TestSynthesize_ExplicitVoiceOverridesDefault(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	s := newTestSynthesizer(server.URL, ElevenLabsConfig{APIKey: "key", DefaultVoiceID: "voice-1"})
	if _, err := s.Synthesize(context.Background(), "hello", "voice-9"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasSuffix(gotPath, "/text-to-speech/voice-9") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}

func TestSynthesize_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := newTestSynthesizer(server.URL, ElevenLabsConfig{APIKey: "key", DefaultVoiceID: "voice-1"})
	if _, err := s.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
