package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	DefaultTargetLanguage      string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	ElevenLabsAPIKey           string
	ElevenLabsDefaultVoiceID   string
	ElevenLabsModelID          string
	AudioSampleRateHertz       int
	ProviderConnectTimeout     time.Duration
	IngestQueueCapacity        int
	ReportDroppedChunks        bool
	AudioStorageDir            string
	AudioPublicBaseURL         string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.AudioSampleRateHertz <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE_HERTZ must be positive, got %d", c.AudioSampleRateHertz)
	}
	if c.ProviderConnectTimeout <= 0 {
		return fmt.Errorf("PROVIDER_CONNECT_TIMEOUT must be positive, got %s", c.ProviderConnectTimeout)
	}
	if c.IngestQueueCapacity <= 0 {
		return fmt.Errorf("INGEST_QUEUE_CAPACITY must be positive, got %d", c.IngestQueueCapacity)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DEFAULT_TARGET_LANGUAGE", value: c.DefaultTargetLanguage},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "ELEVENLABS_API_KEY", value: c.ElevenLabsAPIKey},
		{name: "AUDIO_STORAGE_DIR", value: c.AudioStorageDir},
		{name: "AUDIO_PUBLIC_BASE_URL", value: c.AudioPublicBaseURL},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
