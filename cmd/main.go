package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pickup-matchmaker/bridge/pubsub"
	"pickup-matchmaker/config"
	"pickup-matchmaker/events"
	"pickup-matchmaker/games"
	"pickup-matchmaker/health"
	"pickup-matchmaker/metrics"
	"pickup-matchmaker/players"
	"pickup-matchmaker/queue"
	"pickup-matchmaker/queue/queuecache"
	"pickup-matchmaker/servers"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "source"

const releaseSweepInterval = time.Minute

func setLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func main() {
	// Load config
	cfg := config.Load()
	setLogger(cfg.LogLevel)
	log.Info().Msgf("Starting pickup-matchmaker version: %s", version)
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	// Context and shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics and health HTTP server
	mux := http.NewServeMux()
	metrics.Register(mux)
	health.Register(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting metrics/health server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	bus := events.NewBus()
	playerStore := players.NewStore()

	queueService := queue.NewService(cfg.Queue, playerStore, playerStore, bus)
	defer queueService.Close()
	mapPool := queue.NewMapPool(bus, nil)
	mapVote := queue.NewMapVote(mapPool, queueService, bus)
	defer mapVote.Close()

	// Restore a previously persisted queue when redis is configured
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close the redis client")
			}
		}()

		cache := queuecache.New(rdb, queueService, bus)
		defer cache.Close()
		if err := cache.Restore(ctx); err != nil {
			log.Warn().Err(err).Msg("could not restore the queue from redis")
		}
	}

	gameStore := games.NewMemoryStore()
	catalog := servers.NewMemoryCatalog()
	serverPool := servers.NewService(catalog, games.NewServerStoreAdapter(gameStore), bus)
	defer serverPool.Close()

	staticProvider, err := servers.NewStaticProvider(ctx, catalog, cfg.StaticServers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register static game servers")
	}
	serverPool.RegisterProvider(staticProvider)
	serverPool.StartSweep(ctx, releaseSweepInterval)

	configurator := games.NewConfigurator(cfg, gameStore, playerStore, serverPool, mapPool, &games.StaticGameConfigs{}, bus)
	launcher := games.NewLauncher(queueService, mapVote, gameStore, playerStore, serverPool, configurator, bus)
	defer launcher.Close()

	// Forward game lifecycle events to Pub/Sub when configured
	if cfg.Pubsub.ProjectID != "" && cfg.Pubsub.Topic != "" {
		if cfg.Pubsub.CredentialsFile != "" {
			log.Info().Str("credsFile", cfg.Pubsub.CredentialsFile).Msg("using explicit Google credentials file")
		} else {
			log.Info().Msg("using default Google credentials (in-cluster or ambient)")
		}
		bridge := pubsub.NewBridge(
			pubsub.NewPublisher(cfg.Pubsub.ProjectID, cfg.Pubsub.Topic, cfg.Pubsub.CredentialsFile),
			bus,
		)
		defer bridge.Close()
	}

	log.Info().Int("slots", cfg.SlotCount()).Int("staticServers", len(cfg.StaticServers)).Msg("matchmaker up")

	// Block until shutdown
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server graceful shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}
