package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/registry"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingProvider State = "awaiting_provider"
	StateStreaming        State = "streaming"
	StateDraining         State = "draining"
	StateClosed           State = "closed"
	StateError            State = "error"
)

// OwnerNotifier delivers pipeline output to the owner connection. Calls must
// not block: implementations enqueue onto the connection's write pump.
type OwnerNotifier interface {
	DeliverResult(res Result)
	NotifyError(message string)
	NotifyTranscriptionError(message string)
}

// PipelineConfig carries the tunables of the audio ingest path.
type PipelineConfig struct {
	SampleRate          int
	ConnectTimeout      time.Duration
	QueueCapacity       int
	ReportDroppedChunks bool
}

// Pipeline is the per-session audio ingest state machine. Binary chunks go
// in, transcript segments come out on the fanout. The provider connection is
// opened off the caller's goroutine so a slow provider never stalls frame
// receipt.
type Pipeline struct {
	cfg        PipelineConfig
	recognizer provider.Recognizer
	reg        *registry.Registry
	sess       *registry.Session
	fanout     *Fanout
	notifier   OwnerNotifier
	met        *metrics.Metrics

	mu      sync.Mutex
	state   State
	pending [][]byte
	dropped int
	handle  provider.RecognitionHandle
	cancel  context.CancelFunc
}

func NewPipeline(cfg PipelineConfig, recognizer provider.Recognizer, reg *registry.Registry, sess *registry.Session, fanout *Fanout, notifier OwnerNotifier, met *metrics.Metrics) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		recognizer: recognizer,
		reg:        reg,
		sess:       sess,
		fanout:     fanout,
		notifier:   notifier,
		met:        met,
		state:      StateIdle,
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start moves the pipeline to awaiting_provider and opens the recognition
// channel in the background. It returns immediately.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return
	}
	p.state = StateAwaitingProvider
	streamCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.reg.UpdateStatus(p.sess.ID, registry.StatusConnecting)
	go p.connect(streamCtx)
}

type connectOutcome struct {
	handle provider.RecognitionHandle
	err    error
}

func (p *Pipeline) connect(ctx context.Context) {
	ch := make(chan connectOutcome, 1)
	go func() {
		h, err := p.recognizer.StartRecognition(ctx, provider.StartOptions{
			SessionID:    p.sess.ID,
			SampleRate:   p.cfg.SampleRate,
			LanguageHint: "",
		}, &pipelineSink{p: p})
		ch <- connectOutcome{handle: h, err: err}
	}()

	var h provider.RecognitionHandle
	var err error
	select {
	case o := <-ch:
		h, err = o.handle, o.err
	case <-time.After(p.cfg.ConnectTimeout):
		p.cancelStream()
		go discardLateHandle(ch)
		err = &provider.ConnectError{Err: fmt.Errorf("no provider response within %s", p.cfg.ConnectTimeout)}
	case <-p.sess.Done():
		p.cancelStream()
		go discardLateHandle(ch)
		return
	}
	if err != nil {
		p.fail(err)
		return
	}

	p.mu.Lock()
	if p.state != StateAwaitingProvider {
		p.mu.Unlock()
		_ = h.Close()
		return
	}
	p.handle = h
	p.state = StateStreaming
	pending := p.pending
	p.pending = nil
	dropped := p.dropped
	p.mu.Unlock()

	p.sess.SetHandle(h)
	p.reg.UpdateStatus(p.sess.ID, registry.StatusConnected)
	slog.Info("recognition streaming", "session_id", p.sess.ID, "buffered_chunks", len(pending), "dropped_chunks", dropped)

	for _, chunk := range pending {
		if err := h.SubmitAudio(chunk); err != nil {
			slog.Warn("failed to flush buffered audio chunk", "error", err, "session_id", p.sess.ID)
			break
		}
	}
	if dropped > 0 && p.cfg.ReportDroppedChunks {
		p.notifier.NotifyError(fmt.Sprintf("dropped %d audio chunks while connecting to the transcription service", dropped))
	}
}

func discardLateHandle(ch <-chan connectOutcome) {
	if o := <-ch; o.handle != nil {
		_ = o.handle.Close()
	}
}

// Submit feeds one audio chunk into the pipeline. While the provider is
// still connecting, chunks queue up to the configured capacity and the
// oldest ones are dropped beyond it: freshness matters more than
// completeness for live captioning. Chunks after draining are ignored.
func (p *Pipeline) Submit(chunk []byte) {
	p.mu.Lock()
	switch p.state {
	case StateStreaming:
		h := p.handle
		p.mu.Unlock()
		if err := h.SubmitAudio(chunk); err != nil {
			if errors.Is(err, provider.ErrRecognitionClosed) {
				return
			}
			slog.Warn("failed to submit audio chunk", "error", err, "session_id", p.sess.ID)
		}
	case StateAwaitingProvider:
		var dropped int
		if len(p.pending) >= p.cfg.QueueCapacity {
			p.pending = p.pending[1:]
			p.dropped++
			dropped = p.dropped
		}
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		p.pending = append(p.pending, buf)
		p.mu.Unlock()
		if dropped > 0 {
			p.met.AddDroppedChunks(1)
			slog.Warn("ingest queue full; dropped oldest audio chunk", "session_id", p.sess.ID, "dropped_total", dropped)
		}
	default:
		p.mu.Unlock()
	}
}

// Stop drains the pipeline and releases the provider channel. Safe to call
// in any state and more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	switch p.state {
	case StateStreaming, StateAwaitingProvider:
		p.state = StateDraining
		h := p.handle
		p.pending = nil
		p.mu.Unlock()

		if h != nil {
			if err := h.Close(); err != nil {
				slog.Warn("failed to close recognition handle", "error", err, "session_id", p.sess.ID)
			}
			// Clear the registry's reference so Destroy does not close again.
			p.sess.SetHandle(nil)
		}
		p.cancelStream()

		p.mu.Lock()
		p.state = StateClosed
		p.mu.Unlock()
		slog.Info("ingest pipeline closed", "session_id", p.sess.ID)
	default:
		p.mu.Unlock()
	}
}

func (p *Pipeline) cancelStream() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// fail moves the pipeline and session to error and reports it to the owner.
// The connection stays open; a fresh start command may create a new session.
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	if p.state == StateClosed || p.state == StateError {
		p.mu.Unlock()
		return
	}
	p.state = StateError
	h := p.handle
	p.handle = nil
	p.mu.Unlock()

	if h != nil {
		_ = h.Close()
		p.sess.SetHandle(nil)
	}
	p.cancelStream()
	p.reg.UpdateStatus(p.sess.ID, registry.StatusError)
	p.met.IncSessionErrors()
	slog.Error("ingest pipeline failed", "error", err, "session_id", p.sess.ID)

	if p.sess.Destroyed() {
		return
	}
	switch {
	case errors.Is(err, provider.ErrProviderUnavailable):
		p.notifier.NotifyTranscriptionError("transcription service is not available")
	default:
		p.notifier.NotifyTranscriptionError("transcription service connection failed")
	}
}

// pipelineSink receives provider events from the recognition channel's
// background listener.
type pipelineSink struct {
	p *Pipeline
}

func (s *pipelineSink) OnSegment(seg provider.Segment) {
	p := s.p
	if p.sess.Destroyed() {
		return
	}
	p.met.IncSegments()
	// Segments arriving during draining are still delivered while the
	// session record exists.
	p.fanout.Enqueue(seg)
}

func (s *pipelineSink) OnError(err error) {
	p := s.p
	state := p.State()
	if p.sess.Destroyed() || state == StateDraining || state == StateClosed {
		slog.Info("recognition stream ended", "error", err, "session_id", p.sess.ID)
		return
	}
	p.fail(err)
}
