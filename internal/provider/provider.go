package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrProviderUnavailable is returned by StartRecognition when the speech
// provider is missing credentials or configuration.
var ErrProviderUnavailable = errors.New("speech provider is not configured")

// ErrRecognitionClosed is returned by SubmitAudio after the handle has been
// closed.
var ErrRecognitionClosed = errors.New("recognition handle is closed")

// ConnectError wraps a transport failure while opening a streaming
// recognition channel, including connect-timeout expiry.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("speech provider connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TranslateError reports a failed translation request.
type TranslateError struct {
	Reason string
	Err    error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("translation failed: %s", e.Reason)
}

func (e *TranslateError) Unwrap() error { return e.Err }

// SynthesizeError reports a failed speech synthesis request.
type SynthesizeError struct {
	Reason string
	Err    error
}

func (e *SynthesizeError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %s", e.Reason)
}

func (e *SynthesizeError) Unwrap() error { return e.Err }

// Segment is a bounded span of transcribed speech. Offsets are seconds from
// the start of the recognition stream and are non-decreasing within one
// stream.
type Segment struct {
	Text       string
	Start      float64
	End        float64
	Language   string
	Confidence *float64
}

// EventSink receives transcript segments and stream errors from a
// recognition channel's background listener. Calls arrive from the
// provider's own goroutine, serialized per handle.
type EventSink interface {
	OnSegment(seg Segment)
	OnError(err error)
}

// StartOptions configures a streaming recognition channel.
type StartOptions struct {
	SessionID    string
	SampleRate   int
	LanguageHint string
}

// RecognitionHandle is an open streaming recognition channel.
type RecognitionHandle interface {
	// SubmitAudio enqueues one audio chunk. It does not block on provider
	// backpressure; failures surface through the sink. Returns
	// ErrRecognitionClosed once the handle is closed.
	SubmitAudio(chunk []byte) error

	// Close releases provider resources. Idempotent; double close is a no-op.
	Close() error
}

// Recognizer opens streaming speech recognition channels.
type Recognizer interface {
	StartRecognition(ctx context.Context, opts StartOptions, sink EventSink) (RecognitionHandle, error)
}

// Translation is the result of a single translate call.
type Translation struct {
	Text           string
	DetectedSource string
}

// Translator converts text between languages. Empty input returns an empty
// Translation without a provider round trip.
type Translator interface {
	Translate(ctx context.Context, text, targetLang, sourceLang string) (Translation, error)
}

// Synthesizer converts text to speech audio. An empty voiceID selects the
// adapter's default voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}
