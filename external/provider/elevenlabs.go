package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aktivelabs/livecaption/internal/provider"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

type ElevenLabsConfig struct {
	APIKey         string
	DefaultVoiceID string
	ModelID        string
}

type ElevenLabsSynthesizer struct {
	apiKey         string
	defaultVoiceID string
	modelID        string
	baseURL        string
	client         *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) provider.Synthesizer {
	return &ElevenLabsSynthesizer{
		apiKey:         cfg.APIKey,
		defaultVoiceID: cfg.DefaultVoiceID,
		modelID:        cfg.ModelID,
		baseURL:        elevenLabsBaseURL,
		client:         &http.Client{},
	}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.apiKey == "" {
		return nil, &provider.SynthesizeError{Reason: "api key not configured"}
	}
	if voiceID == "" || voiceID == "default" {
		voiceID = s.defaultVoiceID
	}
	if voiceID == "" {
		return nil, &provider.SynthesizeError{Reason: "no voice configured"}
	}

	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: s.modelID})
	if err != nil {
		return nil, &provider.SynthesizeError{Reason: "encode request", Err: err}
	}
	endpoint := fmt.Sprintf("%s/text-to-speech/%s", s.baseURL, url.PathEscape(voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.SynthesizeError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &provider.SynthesizeError{Reason: "provider request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return nil, &provider.SynthesizeError{Reason: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.SynthesizeError{Reason: "read response", Err: err}
	}
	return audio, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
