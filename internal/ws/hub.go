package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/session"
	"github.com/aktivelabs/livecaption/internal/storage"
)

const viewerQueueCapacity = 16

// eventSender is the connection surface the hub and handlers write to.
// *socket implements it; tests substitute a recorder.
type eventSender interface {
	Send(v any)
	CloseWithCode(code int, reason string)
	Close()
	Done() <-chan struct{}
}

// Hub tracks the viewer broadcast group of each shared session and
// distributes fanout results to them. Each viewer has an independent
// delivery worker, so one slow or failing viewer never affects the others
// or the owner path.
type Hub struct {
	translator  provider.Translator
	synthesizer provider.Synthesizer
	store       storage.AudioStore

	mu     sync.Mutex
	groups map[string]*viewerGroup
}

type viewerGroup struct {
	token   string
	ownerID string
	viewers map[*viewer]struct{}
}

func NewHub(translator provider.Translator, synthesizer provider.Synthesizer, store storage.AudioStore) *Hub {
	return &Hub{
		translator:  translator,
		synthesizer: synthesizer,
		store:       store,
		groups:      make(map[string]*viewerGroup),
	}
}

func (h *Hub) join(token, ownerID string, v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[token]
	if !ok {
		g = &viewerGroup{token: token, ownerID: ownerID, viewers: make(map[*viewer]struct{})}
		h.groups[token] = g
	}
	g.viewers[v] = struct{}{}
}

func (h *Hub) leave(token string, v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[token]
	if !ok {
		return
	}
	delete(g.viewers, v)
	if len(g.viewers) == 0 {
		delete(h.groups, token)
	}
}

// Publish fans a result out to every viewer group belonging to the owning
// user. Cross-viewer ordering is best-effort; per-viewer order is preserved
// by each viewer's delivery worker.
func (h *Hub) Publish(ownerID string, res session.Result) {
	h.mu.Lock()
	var targets []*viewer
	for _, g := range h.groups {
		if g.ownerID != ownerID {
			continue
		}
		for v := range g.viewers {
			targets = append(targets, v)
		}
	}
	h.mu.Unlock()

	for _, v := range targets {
		v.enqueue(res)
	}
}

// ViewerCount reports the total number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, g := range h.groups {
		n += len(g.viewers)
	}
	return n
}

// adjustForViewer re-translates a result into the viewer's preferred
// language when it differs from the owner's target. The second translation
// starts from the original text, not the already-translated text. Any
// failure falls back to the owner's result untouched.
func (h *Hub) adjustForViewer(ctx context.Context, token, lang string, res session.Result) session.Result {
	if lang == "" || lang == res.TargetLanguage {
		return res
	}
	tr, err := h.translator.Translate(ctx, res.OriginalText, lang, res.OriginalLanguage)
	if err != nil {
		slog.Warn("viewer re-translation failed; forwarding owner result", "error", err, "token", token, "language", lang)
		return res
	}
	adjusted := res
	adjusted.TranslatedText = tr.Text
	adjusted.TargetLanguage = lang

	if res.AudioURL != "" {
		audio, err := h.synthesizer.Synthesize(ctx, tr.Text, "")
		if err != nil {
			slog.Warn("viewer re-synthesis failed; keeping owner audio", "error", err, "token", token)
			return adjusted
		}
		url, err := h.store.SaveAudio(ctx, "shared/"+token, audio)
		if err != nil {
			slog.Warn("failed to store viewer audio; keeping owner audio", "error", err, "token", token)
			return adjusted
		}
		adjusted.AudioURL = url
	}
	return adjusted
}

// deliverLoop is each viewer's delivery worker.
func (h *Hub) deliverLoop(v *viewer) {
	for {
		select {
		case <-v.sender.Done():
			return
		case res := <-v.results:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			adjusted := h.adjustForViewer(ctx, v.token, v.Language(), res)
			cancel()
			v.sender.Send(translationEventFrom(adjusted))
		}
	}
}
