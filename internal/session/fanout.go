package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/storage"
)

const (
	segmentQueueCapacity = 64
	collaboratorTimeout  = 10 * time.Second
)

// Result is one translated segment as delivered to the owner and published
// to viewers. OriginalText and OriginalLanguage let viewers re-translate
// from the source rather than chaining translations.
type Result struct {
	SessionID        string
	OriginalText     string
	OriginalLanguage string
	Start            float64
	End              float64
	TranslatedText   string
	TargetLanguage   string
	SubtitleEnabled  bool
	FontStyle        string
	AudioURL         string
	AudioUnavailable bool
}

// Publisher distributes a result to the viewer groups of the owning user.
type Publisher interface {
	Publish(ownerID string, res Result)
}

// Fanout consumes transcript segments for one session, translates and
// optionally synthesizes them, and delivers results. A single goroutine
// processes segments in arrival order, which is what gives the owner
// in-order delivery.
type Fanout struct {
	sess        *registry.Session
	translator  provider.Translator
	synthesizer provider.Synthesizer
	store       storage.AudioStore
	repo        repository.Repository
	notifier    OwnerNotifier
	publisher   Publisher
	met         *metrics.Metrics
	saveHistory bool

	segments chan provider.Segment
	finished chan struct{}
}

func NewFanout(
	sess *registry.Session,
	translator provider.Translator,
	synthesizer provider.Synthesizer,
	store storage.AudioStore,
	repo repository.Repository,
	notifier OwnerNotifier,
	publisher Publisher,
	met *metrics.Metrics,
	saveHistory bool,
) *Fanout {
	f := &Fanout{
		sess:        sess,
		translator:  translator,
		synthesizer: synthesizer,
		store:       store,
		repo:        repo,
		notifier:    notifier,
		publisher:   publisher,
		met:         met,
		saveHistory: saveHistory,
		segments:    make(chan provider.Segment, segmentQueueCapacity),
		finished:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Enqueue hands a segment to the fanout worker. It never blocks the
// provider's listener goroutine; if the worker cannot keep up the segment is
// dropped with a log entry.
func (f *Fanout) Enqueue(seg provider.Segment) {
	if f.sess.Destroyed() {
		return
	}
	select {
	case f.segments <- seg:
	default:
		slog.Warn("fanout queue full; dropped segment", "session_id", f.sess.ID, "start", seg.Start)
	}
}

// Finished is closed when the fanout worker has exited.
func (f *Fanout) Finished() <-chan struct{} {
	return f.finished
}

func (f *Fanout) run() {
	defer close(f.finished)
	for {
		select {
		case <-f.sess.Done():
			return
		case seg := <-f.segments:
			f.process(seg)
		}
	}
}

func (f *Fanout) process(seg provider.Segment) {
	f.sess.MarkProcessing()
	settings := f.sess.Settings()

	usage := repository.SegmentUsage{
		OwnerID:          f.sess.OwnerID,
		SessionID:        f.sess.ID,
		TranslationChars: len([]rune(seg.Text)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	tr, err := f.translator.Translate(ctx, seg.Text, settings.TargetLanguage, seg.Language)
	if err != nil {
		f.met.IncTranslationFailures()
		f.recordUsage(usage)
		slog.Error("segment translation failed", "error", err, "session_id", f.sess.ID)
		if !f.sess.Destroyed() {
			f.notifier.NotifyError("translation failed for the last segment")
		}
		return
	}
	usage.TranslationOK = true
	f.met.IncTranslations()

	sourceLang := seg.Language
	if tr.DetectedSource != "" {
		sourceLang = tr.DetectedSource
	}
	res := Result{
		SessionID:        f.sess.ID,
		OriginalText:     seg.Text,
		OriginalLanguage: sourceLang,
		Start:            seg.Start,
		End:              seg.End,
		TranslatedText:   tr.Text,
		TargetLanguage:   settings.TargetLanguage,
		SubtitleEnabled:  settings.SubtitleEnabled,
		FontStyle:        settings.FontStyle,
	}

	if settings.WantsAudio() {
		usage.SynthesisAttempted = true
		usage.SynthesisChars = len([]rune(tr.Text))
		audio, err := f.synthesizer.Synthesize(ctx, tr.Text, settings.VoiceID)
		if err != nil {
			f.met.IncSynthesisFailures()
			res.AudioUnavailable = true
			slog.Warn("speech synthesis failed; delivering without audio", "error", err, "session_id", f.sess.ID)
		} else {
			usage.SynthesisOK = true
			url, err := f.store.SaveAudio(ctx, f.sess.OwnerID, audio)
			if err != nil {
				res.AudioUnavailable = true
				slog.Error("failed to store synthesized audio", "error", err, "session_id", f.sess.ID)
			} else {
				res.AudioURL = url
			}
		}
	}

	f.recordUsage(usage)

	// A destroyed session means the client already received session_stopped;
	// the result is discarded, not errored.
	if f.sess.Destroyed() {
		return
	}

	f.notifier.DeliverResult(res)
	f.publisher.Publish(f.sess.OwnerID, res)

	if f.saveHistory {
		if err := f.repo.InsertHistory(ctx, repository.InsertHistoryInput{
			OwnerID:        f.sess.OwnerID,
			OriginalText:   res.OriginalText,
			TranslatedText: res.TranslatedText,
			SourceLanguage: res.OriginalLanguage,
			TargetLanguage: res.TargetLanguage,
			AudioURL:       res.AudioURL,
		}); err != nil {
			slog.Error("failed to save translation history", "error", err, "session_id", f.sess.ID)
		}
	}
}

// recordUsage is attempted once per segment regardless of translation or
// synthesis outcome so billing reflects partial results accurately.
func (f *Fanout) recordUsage(usage repository.SegmentUsage) {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := f.repo.RecordSegmentUsage(ctx, usage); err != nil {
		slog.Error("failed to record segment usage", "error", err, "session_id", f.sess.ID)
	}
}
