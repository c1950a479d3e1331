package provider

import (
	"context"
	"fmt"
	"html"
	"sync"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/aktivelabs/livecaption/internal/provider"
)

type GoogleTranslateConfig struct {
	CredentialsJSON string
}

type GoogleTranslator struct {
	credentialsJSON string

	mu     sync.Mutex
	client *translate.Client
}

func NewGoogleTranslator(cfg GoogleTranslateConfig) provider.Translator {
	return &GoogleTranslator{credentialsJSON: cfg.CredentialsJSON}
}

func (t *GoogleTranslator) Translate(ctx context.Context, text, targetLang, sourceLang string) (provider.Translation, error) {
	if text == "" {
		return provider.Translation{}, nil
	}

	target, err := language.Parse(targetLang)
	if err != nil {
		return provider.Translation{}, &provider.TranslateError{Reason: fmt.Sprintf("invalid target language %q", targetLang), Err: err}
	}

	client, err := t.getClient(ctx)
	if err != nil {
		return provider.Translation{}, &provider.TranslateError{Reason: "translation client unavailable", Err: err}
	}

	opts := &translate.Options{Format: translate.Text}
	if sourceLang != "" {
		source, err := language.Parse(sourceLang)
		if err == nil {
			opts.Source = source
		}
	}

	results, err := client.Translate(ctx, []string{text}, target, opts)
	if err != nil {
		return provider.Translation{}, &provider.TranslateError{Reason: "provider request failed", Err: err}
	}
	if len(results) == 0 {
		return provider.Translation{}, &provider.TranslateError{Reason: "provider returned no result"}
	}

	detected := sourceLang
	if results[0].Source != (language.Tag{}) {
		detected = results[0].Source.String()
	}
	return provider.Translation{
		Text:           html.UnescapeString(results[0].Text),
		DetectedSource: detected,
	}, nil
}

func (t *GoogleTranslator) getClient(ctx context.Context) (*translate.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}
	if t.credentialsJSON == "" {
		return nil, provider.ErrProviderUnavailable
	}
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, err
	}
	client, err := translate.NewClient(ctx, option.WithAuthCredentials(creds))
	if err != nil {
		return nil, err
	}
	t.client = client
	return client, nil
}
