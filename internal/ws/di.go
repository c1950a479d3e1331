package ws

import (
	"github.com/samber/do/v2"

	"github.com/aktivelabs/livecaption/internal/config"
	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/provider"
	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/repository"
	"github.com/aktivelabs/livecaption/internal/storage"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*registry.Registry, error) {
		return registry.New(), nil
	})
	do.Provide(injector, func(i do.Injector) (*metrics.Metrics, error) {
		return metrics.New(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Hub, error) {
		translator := do.MustInvoke[provider.Translator](i)
		synthesizer := do.MustInvoke[provider.Synthesizer](i)
		store := do.MustInvoke[storage.AudioStore](i)
		return NewHub(translator, synthesizer, store), nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		reg := do.MustInvoke[*registry.Registry](i)
		recognizer := do.MustInvoke[provider.Recognizer](i)
		translator := do.MustInvoke[provider.Translator](i)
		synthesizer := do.MustInvoke[provider.Synthesizer](i)
		store := do.MustInvoke[storage.AudioStore](i)
		repo := do.MustInvoke[repository.Repository](i)
		hub := do.MustInvoke[*Hub](i)
		met := do.MustInvoke[*metrics.Metrics](i)
		return NewManager(cfg, reg, recognizer, translator, synthesizer, store, repo, hub, met), nil
	})
}
