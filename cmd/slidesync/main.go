package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/slidesync/slidesync/internal/app"
	"github.com/slidesync/slidesync/internal/config"
	"github.com/slidesync/slidesync/internal/deck"
	"github.com/slidesync/slidesync/internal/gateway"
	"github.com/slidesync/slidesync/internal/registry"
	"github.com/slidesync/slidesync/internal/relay"
	"github.com/slidesync/slidesync/internal/session"
	"github.com/slidesync/slidesync/internal/snapshot"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(getEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Persistence gateway: Postgres when configured, JSON file
	// otherwise. Failures degrade to an empty snapshot; they never
	// block startup.
	var store snapshot.Store
	if cfg.DatabaseURL != "" {
		pg, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect snapshot database, falling back to file store")
			store = snapshot.NewFileStore(cfg.StateFile)
		} else {
			defer pg.Close()
			store = pg
		}
	} else {
		store = snapshot.NewFileStore(cfg.StateFile)
	}

	seeds, err := store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load slide positions, starting from index 0")
		seeds = nil
	} else {
		log.Info().Int("sets", len(seeds)).Msg("slide positions restored")
	}

	reg := registry.New(deck.NewCSVLoader(cfg.DecksDir), seeds)
	auth := session.NewAuthenticator(cfg.Host.Username, hostPasswordHash(cfg), cfg.SessionTimeout(), clock)

	var mirror app.Mirror
	if cfg.NATSURL != "" {
		pub, err := relay.New(cfg.NATSURL)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect event relay, continuing without it")
		} else {
			defer pub.Close()
			mirror = pub
		}
	}

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	application := app.New(reg, auth, cm, clock, store, mirror)
	cm.SetHandler(application)

	go cm.Start(ctx)
	go runTicker(ctx, clock, application)

	server := setupServer(cfg, cm, application)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

// runTicker drives the global 1 Hz timer sweep across all cached sets.
func runTicker(ctx context.Context, clock clockwork.Clock, application *app.App) {
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			application.Tick(clock.Now())
		}
	}
}

// hostPasswordHash resolves the host credential hash. A configured
// bcrypt hash wins; otherwise a plaintext HOST_PASSWORD is hashed at
// startup so development setups work without pre-hashing.
func hostPasswordHash(cfg *config.Config) string {
	if cfg.Host.PasswordHash != "" {
		return cfg.Host.PasswordHash
	}

	password := os.Getenv("HOST_PASSWORD")
	if password == "" {
		log.Warn().Msg("no host password configured, host login disabled")
		return ""
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash host password, host login disabled")
		return ""
	}
	return string(hash)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
