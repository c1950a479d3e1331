package provider

import (
	"github.com/samber/do/v2"

	"github.com/aktivelabs/livecaption/internal/config"
	"github.com/aktivelabs/livecaption/internal/provider"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (provider.Recognizer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCloudSpeechRecognizer(CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		}), nil
	})
	do.Provide(injector, func(i do.Injector) (provider.Translator, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewGoogleTranslator(GoogleTranslateConfig{
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
		}), nil
	})
	do.Provide(injector, func(i do.Injector) (provider.Synthesizer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewElevenLabsSynthesizer(ElevenLabsConfig{
			APIKey:         c.ElevenLabsAPIKey,
			DefaultVoiceID: c.ElevenLabsDefaultVoiceID,
			ModelID:        c.ElevenLabsModelID,
		}), nil
	})
}
