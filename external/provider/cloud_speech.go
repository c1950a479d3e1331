package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aktivelabs/livecaption/internal/provider"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type CloudSpeechRecognizer struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string
}

func NewCloudSpeechRecognizer(cfg CloudSpeechConfig) provider.Recognizer {
	return &CloudSpeechRecognizer{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (r *CloudSpeechRecognizer) StartRecognition(ctx context.Context, opts provider.StartOptions, sink provider.EventSink) (provider.RecognitionHandle, error) {
	if r.projectID == "" || r.credentialsJSON == "" {
		return nil, provider.ErrProviderUnavailable
	}
	slog.Info("starting cloud speech streaming", "session_id", opts.SessionID, "location", r.location, "language", opts.LanguageHint, "model", r.model)

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(r.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, provider.ErrProviderUnavailable
	}

	clientOpts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if r.location != "" && r.location != "global" {
		clientOpts = append(clientOpts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", r.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, &provider.ConnectError{Err: err}
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, &provider.ConnectError{Err: err}
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", r.projectID, r.location)
	sendConfig := func(s speechpb.Speech_StreamingRecognizeClient) error {
		return s.Send(&speechpb.StreamingRecognizeRequest{
			Recognizer: recognizer,
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: &speechpb.StreamingRecognitionConfig{
					Config: &speechpb.RecognitionConfig{
						Model:         r.model,
						LanguageCodes: []string{languageOrAuto(opts.LanguageHint)},
						DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
							ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
								Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
								SampleRateHertz:   int32(opts.SampleRate),
								AudioChannelCount: 1,
							},
						},
						Features: &speechpb.RecognitionFeatures{},
					},
					StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: false},
				},
			},
		})
	}
	if err := sendConfig(stream); err != nil {
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, &provider.ConnectError{Err: err}
	}
	slog.Info("cloud speech stream initialized", "session_id", opts.SessionID)

	h := &speechHandle{
		sessionID: opts.SessionID,
		stream:    stream,
		sink:      sink,
		sendCh:    make(chan []byte, speechSendQueueCapacity),
		done:      make(chan struct{}),
		newStreamFn: func() (speechpb.Speech_StreamingRecognizeClient, error) {
			next, err := client.StreamingRecognize(ctx)
			if err != nil {
				return nil, err
			}
			if err := sendConfig(next); err != nil {
				_ = next.CloseSend()
				return nil, err
			}
			return next, nil
		},
		closeFn: func() error {
			return client.Close()
		},
	}
	go h.sendLoop()
	h.startReceiver(stream)

	return h, nil
}

func languageOrAuto(hint string) string {
	if hint == "" {
		return "auto"
	}
	return hint
}

const speechSendQueueCapacity = 64

type speechHandle struct {
	sessionID string
	sink      provider.EventSink

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	lastEndSec float64

	// stream, newStreamFn and closeFn are owned by the send loop after
	// construction.
	stream      speechpb.Speech_StreamingRecognizeClient
	newStreamFn func() (speechpb.Speech_StreamingRecognizeClient, error)
	closeFn     func() error
}

// SubmitAudio enqueues the chunk for the background sender and returns
// without waiting on the provider. When the sender falls behind, the newest
// chunk is dropped; provider failures surface through the sink, not here.
func (h *speechHandle) SubmitAudio(chunk []byte) error {
	select {
	case <-h.done:
		return provider.ErrRecognitionClosed
	default:
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	select {
	case h.sendCh <- buf:
	case <-h.done:
		return provider.ErrRecognitionClosed
	default:
		slog.Warn("speech send queue full; dropped audio chunk", "session_id", h.sessionID)
	}
	return nil
}

func (h *speechHandle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	return nil
}

// sendLoop drains the audio queue onto the gRPC stream, reconnecting across
// the provider's stream-duration limits. The loop owns the stream: slow or
// failing sends never run on the caller's goroutine.
func (h *speechHandle) sendLoop() {
	defer func() {
		_ = h.stream.CloseSend()
		if err := h.closeFn(); err != nil {
			slog.Warn("failed to close speech client", "error", err, "session_id", h.sessionID)
		}
	}()
	for {
		select {
		case <-h.done:
			return
		case chunk := <-h.sendCh:
			if err := h.sendChunk(chunk); err != nil {
				h.sink.OnError(err)
				return
			}
		}
	}
}

func (h *speechHandle) sendChunk(chunk []byte) error {
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
			Audio: chunk,
		},
	}
	if err := h.stream.Send(req); err != nil {
		if !isReconnectableStreamError(err) {
			return err
		}
		slog.Warn("speech send failed with reconnectable error; reconnecting", "error", err, "session_id", h.sessionID)
		if err := h.reconnect(); err != nil {
			return fmt.Errorf("reconnect stream: %w", err)
		}
		return h.stream.Send(req)
	}
	return nil
}

func (h *speechHandle) reconnect() error {
	_ = h.stream.CloseSend()
	next, err := h.newStreamFn()
	if err != nil {
		slog.Error("failed to reconnect speech stream", "error", err, "session_id", h.sessionID)
		return err
	}
	h.stream = next
	h.startReceiver(next)
	slog.Info("speech stream reconnected", "session_id", h.sessionID)
	return nil
}

func (h *speechHandle) startReceiver(stream speechpb.Speech_StreamingRecognizeClient) {
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF || strings.Contains(err.Error(), "context canceled") {
					slog.Info("speech receive loop stopped", "session_id", h.sessionID, "reason", err.Error())
					return
				}
				if isReconnectableStreamError(err) {
					slog.Warn("speech receive loop ended with reconnectable abort", "error", err, "session_id", h.sessionID)
					return
				}
				h.sink.OnError(err)
				return
			}
			for _, result := range resp.GetResults() {
				if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
					continue
				}
				alt := result.GetAlternatives()[0]
				end := result.GetResultEndOffset().AsDuration().Seconds()
				h.mu.Lock()
				start := h.lastEndSec
				if end < start {
					end = start
				}
				h.lastEndSec = end
				h.mu.Unlock()
				var confidence *float64
				if alt.GetConfidence() > 0 {
					c := float64(alt.GetConfidence())
					confidence = &c
				}
				h.sink.OnSegment(provider.Segment{
					Text:       alt.GetTranscript(),
					Start:      start,
					End:        end,
					Language:   result.GetLanguageCode(),
					Confidence: confidence,
				})
			}
		}
	}()
}

func isReconnectableStreamError(err error) bool {
	if err == io.EOF || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}
