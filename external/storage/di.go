package storage

import (
	"github.com/samber/do/v2"

	"github.com/aktivelabs/livecaption/internal/config"
	"github.com/aktivelabs/livecaption/internal/storage"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (storage.AudioStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewLocalAudioStore(cfg.AudioStorageDir, cfg.AudioPublicBaseURL), nil
	})
}
