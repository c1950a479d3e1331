package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
)

type mockHandle struct {
	mu        sync.Mutex
	chunks    [][]byte
	closed    int
	submitErr error
}

func (h *mockHandle) SubmitAudio(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.submitErr != nil {
		return h.submitErr
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	h.chunks = append(h.chunks, buf)
	return nil
}

func (h *mockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *mockHandle) submitted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.chunks))
	for _, c := range h.chunks {
		out = append(out, string(c))
	}
	return out
}

func (h *mockHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type mockRecognizer struct {
	mu       sync.Mutex
	handle   *mockHandle
	startErr error
	release  chan struct{}
	sink     provider.EventSink
	starts   int
}

func (m *mockRecognizer) StartRecognition(ctx context.Context, _ provider.StartOptions, sink provider.EventSink) (provider.RecognitionHandle, error) {
	m.mu.Lock()
	m.starts++
	m.sink = sink
	release := m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, &provider.ConnectError{Err: ctx.Err()}
		}
	}
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.handle, nil
}

func (m *mockRecognizer) eventSink() provider.EventSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink
}

type mockNotifier struct {
	mu                  sync.Mutex
	results             []Result
	errors              []string
	transcriptionErrors []string
}

func (n *mockNotifier) DeliverResult(res Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
}

func (n *mockNotifier) NotifyError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *mockNotifier) NotifyTranscriptionError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcriptionErrors = append(n.transcriptionErrors, message)
}

func (n *mockNotifier) resultCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

func (n *mockNotifier) transcriptionErrorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transcriptionErrors)
}

type mockPublisher struct {
	mu      sync.Mutex
	results []Result
}

func (p *mockPublisher) Publish(_ string, res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
}

func (p *mockPublisher) published() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.results...)
}

type mockTranslator struct {
	mu       sync.Mutex
	calls    []string
	err      error
	detected string
}

func (m *mockTranslator) Translate(_ context.Context, text, targetLang, _ string) (provider.Translation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.err
	detected := m.detected
	m.mu.Unlock()
	if err != nil {
		return provider.Translation{}, err
	}
	return provider.Translation{Text: "[" + targetLang + "] " + text, DetectedSource: detected}, nil
}

type mockSynthesizer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockSynthesizer) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

type mockAudioStore struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (m *mockAudioStore) SaveAudio(_ context.Context, scope string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.saves++
	return "https://media.test/" + scope + "/clip.mp3", nil
}

type mockRepository struct {
	mu           sync.Mutex
	usageCalls   []repository.SegmentUsage
	historyCalls []repository.InsertHistoryInput
	historyErr   error
}

func (m *mockRepository) AuthenticateToken(_ context.Context, _ string) (*repository.User, error) {
	return nil, nil
}
func (m *mockRepository) IsSubscriptionActive(_ context.Context, _ string) (bool, error) {
	return true, nil
}
func (m *mockRepository) GetUserSettings(_ context.Context, _ string) (*repository.UserSettings, error) {
	return nil, nil
}
func (m *mockRepository) InsertHistory(_ context.Context, input repository.InsertHistoryInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return m.historyErr
	}
	m.historyCalls = append(m.historyCalls, input)
	return nil
}
func (m *mockRepository) RecentHistoryByOwner(_ context.Context, _ string, _ int) ([]repository.HistoryEntry, error) {
	return nil, nil
}
func (m *mockRepository) RecordSessionStart(_ context.Context, _, _ string) error { return nil }
func (m *mockRepository) RecordSessionEnd(_ context.Context, _, _ string) error   { return nil }
func (m *mockRepository) RecordSegmentUsage(_ context.Context, usage repository.SegmentUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageCalls = append(m.usageCalls, usage)
	return nil
}
func (m *mockRepository) GetSharedSessionByToken(_ context.Context, _ string) (*repository.SharedSession, error) {
	return nil, nil
}
func (m *mockRepository) IncrementViewCount(_ context.Context, _ string) error { return nil }
func (m *mockRepository) UpsertViewerActivity(_ context.Context, _ repository.ViewerActivity) error {
	return nil
}
func (m *mockRepository) TouchViewer(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (m *mockRepository) recordedUsage() []repository.SegmentUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.SegmentUsage(nil), m.usageCalls...)
}

func (m *mockRepository) recordedHistory() []repository.InsertHistoryInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.InsertHistoryInput(nil), m.historyCalls...)
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

type pipelineFixture struct {
	reg        *registry.Registry
	sess       *registry.Session
	recognizer *mockRecognizer
	notifier   *mockNotifier
	publisher  *mockPublisher
	translator *mockTranslator
	repo       *mockRepository
	pipeline   *Pipeline
}

func newPipelineFixture(cfg PipelineConfig, recognizer *mockRecognizer, settings registry.Settings) *pipelineFixture {
	reg := registry.New()
	sess := reg.Create("owner-1", settings)
	notifier := &mockNotifier{}
	publisher := &mockPublisher{}
	translator := &mockTranslator{}
	repo := &mockRepository{}
	met := metrics.New()
	fanout := NewFanout(sess, translator, &mockSynthesizer{}, &mockAudioStore{}, repo, notifier, publisher, met, false)
	return &pipelineFixture{
		reg:        reg,
		sess:       sess,
		recognizer: recognizer,
		notifier:   notifier,
		publisher:  publisher,
		translator: translator,
		repo:       repo,
		pipeline:   NewPipeline(cfg, recognizer, reg, sess, fanout, notifier, met),
	}
}

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SampleRate:     16000,
		ConnectTimeout: time.Second,
		QueueCapacity:  8,
	}
}

func TestPipelineStartConnectsAndStreams(t *testing.T) {
	handle := &mockHandle{}
	f := newPipelineFixture(defaultPipelineConfig(), &mockRecognizer{handle: handle}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })

	if got := f.sess.Status(); got != registry.StatusConnected {
		t.Fatalf("expected session status connected, got %s", got)
	}

	f.pipeline.Submit([]byte("chunk-1"))
	waitFor(t, "chunk submission", func() bool { return len(handle.submitted()) == 1 })
	if got := handle.submitted()[0]; got != "chunk-1" {
		t.Fatalf("unexpected chunk: %s", got)
	}
}

func TestPipelineBuffersWhileConnectingAndDropsOldest(t *testing.T) {
	handle := &mockHandle{}
	release := make(chan struct{})
	cfg := defaultPipelineConfig()
	cfg.QueueCapacity = 2
	f := newPipelineFixture(cfg, &mockRecognizer{handle: handle, release: release}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "awaiting provider", func() bool { return f.pipeline.State() == StateAwaitingProvider })

	f.pipeline.Submit([]byte("a"))
	f.pipeline.Submit([]byte("b"))
	f.pipeline.Submit([]byte("c"))

	close(release)
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })
	waitFor(t, "buffered chunk flush", func() bool { return len(handle.submitted()) == 2 })

	got := handle.submitted()
	if got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected oldest chunk dropped, got %v", got)
	}
}

func TestPipelineConnectTimeout(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.ConnectTimeout = 30 * time.Millisecond
	f := newPipelineFixture(cfg, &mockRecognizer{handle: &mockHandle{}, release: make(chan struct{})}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline error", func() bool { return f.pipeline.State() == StateError })

	if got := f.sess.Status(); got != registry.StatusError {
		t.Fatalf("expected session status error, got %s", got)
	}
	waitFor(t, "transcription error notification", func() bool { return f.notifier.transcriptionErrorCount() == 1 })
}

func TestPipelineStartFailureNotifiesOwner(t *testing.T) {
	f := newPipelineFixture(defaultPipelineConfig(), &mockRecognizer{startErr: provider.ErrProviderUnavailable}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline error", func() bool { return f.pipeline.State() == StateError })
	waitFor(t, "transcription error notification", func() bool { return f.notifier.transcriptionErrorCount() == 1 })

	f.notifier.mu.Lock()
	msg := f.notifier.transcriptionErrors[0]
	f.notifier.mu.Unlock()
	if msg != "transcription service is not available" {
		t.Fatalf("unexpected message: %s", msg)
	}
}

func TestPipelineStopWhileAwaitingProvider(t *testing.T) {
	handle := &mockHandle{}
	release := make(chan struct{})
	f := newPipelineFixture(defaultPipelineConfig(), &mockRecognizer{handle: handle, release: release}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "awaiting provider", func() bool { return f.pipeline.State() == StateAwaitingProvider })

	f.pipeline.Stop()
	if got := f.pipeline.State(); got != StateClosed {
		t.Fatalf("expected closed after stop, got %s", got)
	}

	close(release)
	time.Sleep(50 * time.Millisecond)

	if got := f.pipeline.State(); got != StateClosed {
		t.Fatalf("late connect outcome changed state to %s", got)
	}
	if f.notifier.transcriptionErrorCount() != 0 {
		t.Fatalf("stop must not surface a transcription error")
	}
}

func TestPipelineSubmitAfterStopIgnored(t *testing.T) {
	handle := &mockHandle{}
	f := newPipelineFixture(defaultPipelineConfig(), &mockRecognizer{handle: handle}, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })
	f.pipeline.Stop()

	f.pipeline.Submit([]byte("late"))
	if got := len(handle.submitted()); got != 0 {
		t.Fatalf("expected no submissions after stop, got %d", got)
	}
	if got := handle.closeCount(); got != 1 {
		t.Fatalf("expected handle closed once, got %d", got)
	}
}

func TestPipelineStreamErrorMovesToError(t *testing.T) {
	handle := &mockHandle{}
	recognizer := &mockRecognizer{handle: handle}
	f := newPipelineFixture(defaultPipelineConfig(), recognizer, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })

	recognizer.eventSink().OnError(errors.New("stream broke"))
	waitFor(t, "pipeline error", func() bool { return f.pipeline.State() == StateError })

	if got := handle.closeCount(); got != 1 {
		t.Fatalf("expected handle closed once, got %d", got)
	}
	waitFor(t, "transcription error notification", func() bool { return f.notifier.transcriptionErrorCount() == 1 })
}

func TestPipelineStreamErrorAfterStopIgnored(t *testing.T) {
	handle := &mockHandle{}
	recognizer := &mockRecognizer{handle: handle}
	f := newPipelineFixture(defaultPipelineConfig(), recognizer, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })
	f.pipeline.Stop()

	recognizer.eventSink().OnError(errors.New("stream closed by peer"))
	time.Sleep(50 * time.Millisecond)

	if got := f.pipeline.State(); got != StateClosed {
		t.Fatalf("expected closed, got %s", got)
	}
	if f.notifier.transcriptionErrorCount() != 0 {
		t.Fatalf("post-stop stream error must not reach the owner")
	}
}

func TestPipelineSegmentFlowsToOwner(t *testing.T) {
	recognizer := &mockRecognizer{handle: &mockHandle{}}
	f := newPipelineFixture(defaultPipelineConfig(), recognizer, registry.Settings{TargetLanguage: "fr", SubtitleEnabled: true})

	f.pipeline.Start()
	waitFor(t, "pipeline streaming", func() bool { return f.pipeline.State() == StateStreaming })

	recognizer.eventSink().OnSegment(provider.Segment{Text: "hello world", Start: 0, End: 1.5})
	waitFor(t, "result delivery", func() bool { return f.notifier.resultCount() == 1 })

	f.notifier.mu.Lock()
	res := f.notifier.results[0]
	f.notifier.mu.Unlock()
	if res.TranslatedText != "[fr] hello world" {
		t.Fatalf("unexpected translation: %s", res.TranslatedText)
	}
	if res.OriginalText != "hello world" {
		t.Fatalf("unexpected original text: %s", res.OriginalText)
	}
}
