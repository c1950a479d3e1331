package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	internalconfig "github.com/aktivelabs/livecaption/internal/config"
)

type envConfig struct {
	Env                        string        `env:"ENV" envDefault:"production"`
	HTTPAddr                   string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL                string        `env:"DATABASE_URL,required"`
	DefaultTargetLanguage      string        `env:"DEFAULT_TARGET_LANGUAGE" envDefault:"en"`
	GoogleCloudProjectID       string        `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string        `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string        `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string        `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"latest_long"`
	ElevenLabsAPIKey           string        `env:"ELEVENLABS_API_KEY,required"`
	ElevenLabsDefaultVoiceID   string        `env:"ELEVENLABS_DEFAULT_VOICE_ID"`
	ElevenLabsModelID          string        `env:"ELEVENLABS_MODEL_ID" envDefault:"eleven_multilingual_v2"`
	AudioSampleRateHertz       int           `env:"AUDIO_SAMPLE_RATE_HERTZ" envDefault:"16000"`
	ProviderConnectTimeout     time.Duration `env:"PROVIDER_CONNECT_TIMEOUT" envDefault:"15s"`
	IngestQueueCapacity        int           `env:"INGEST_QUEUE_CAPACITY" envDefault:"32"`
	ReportDroppedChunks        bool          `env:"REPORT_DROPPED_CHUNKS" envDefault:"false"`
	AudioStorageDir            string        `env:"AUDIO_STORAGE_DIR,required"`
	AudioPublicBaseURL         string        `env:"AUDIO_PUBLIC_BASE_URL,required"`
}

// Load reads configuration from the environment, preloading a .env file when
// one exists in the working directory.
func Load() (*internalconfig.Config, error) {
	_ = godotenv.Load()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseURL:                raw.DatabaseURL,
		DefaultTargetLanguage:      raw.DefaultTargetLanguage,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		ElevenLabsAPIKey:           raw.ElevenLabsAPIKey,
		ElevenLabsDefaultVoiceID:   raw.ElevenLabsDefaultVoiceID,
		ElevenLabsModelID:          raw.ElevenLabsModelID,
		AudioSampleRateHertz:       raw.AudioSampleRateHertz,
		ProviderConnectTimeout:     raw.ProviderConnectTimeout,
		IngestQueueCapacity:        raw.IngestQueueCapacity,
		ReportDroppedChunks:        raw.ReportDroppedChunks,
		AudioStorageDir:            raw.AudioStorageDir,
		AudioPublicBaseURL:         raw.AudioPublicBaseURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
