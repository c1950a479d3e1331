package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/do/v2"

	configloader "github.com/aktivelabs/livecaption/external/config"
	providerimpl "github.com/aktivelabs/livecaption/external/provider"
	repositoryimpl "github.com/aktivelabs/livecaption/external/repository"
	storageimpl "github.com/aktivelabs/livecaption/external/storage"
	"github.com/aktivelabs/livecaption/internal/config"
	"github.com/aktivelabs/livecaption/internal/metrics"
	"github.com/aktivelabs/livecaption/internal/registry"
	"github.com/aktivelabs/livecaption/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching http server")
	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	providerimpl.RegisterDI(injector)
	storageimpl.RegisterDI(injector)
	ws.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	manager, err := do.Invoke[*ws.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve connection manager", "error", err)
		os.Exit(1)
	}
	reg, err := do.Invoke[*registry.Registry](injector)
	if err != nil {
		slog.Error("failed to resolve session registry", "error", err)
		os.Exit(1)
	}
	met, err := do.Invoke[*metrics.Metrics](injector)
	if err != nil {
		slog.Error("failed to resolve metrics", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveSessions(reg.ActiveCount()) }).ServeHTTP(w, req)
	})
	r.Get("/ws/translate", manager.HandleOwner)
	r.Get("/ws/subtitles/{token}", manager.HandleViewer)
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.AudioStorageDir))))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "addr", cfg.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
