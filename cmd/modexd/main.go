package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/systemshift/modex/internal/modrt"
	"github.com/systemshift/modex/internal/server/api"
	"github.com/systemshift/modex/internal/settings"
	"github.com/systemshift/modex/internal/watcher"
	"github.com/systemshift/modex/pkg/gitsync"
	"github.com/systemshift/modex/pkg/registry"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := getEnv("MODEX_ROOT", ".")
	port := getEnv("PORT", "8080")

	root, err := filepath.Abs(root)
	if err != nil {
		log.Fatal().Err(err).Msg("resolving project root")
	}
	modulesDir := filepath.Join(root, "modules")

	cfg, err := settings.Load(filepath.Join(root, settings.Filename))
	if err != nil {
		log.Fatal().Err(err).Msg("loading settings")
	}

	stateFile := registry.NewStateFile(
		filepath.Join(root, ".modex", "module_states.cfg"), cfg.ProjectName())
	reg := registry.New(modulesDir, stateFile, modrt.NewLoader(log), log)
	if err := reg.Refresh(); err != nil {
		log.Fatal().Err(err).Msg("initial module scan failed")
	}

	engine := gitsync.New(log, gitsync.WithProjectRoot(root))
	apiServer := api.New(reg, engine, cfg, log)

	// Re-scan when the modules directory changes on disk.
	watch, err := watcher.New(modulesDir, reg.Refresh, log)
	if err != nil {
		log.Warn().Err(err).Msg("module watching disabled")
	} else {
		watch.Start()
		defer watch.Close()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/api", apiServer.Routes())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting modexd")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
