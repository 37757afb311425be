package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/generations-connect/connect-server-go/internal/config"
	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/handler"
	"github.com/generations-connect/connect-server-go/internal/jobs"
	"github.com/generations-connect/connect-server-go/internal/matching"
	"github.com/generations-connect/connect-server-go/internal/middleware"
	"github.com/generations-connect/connect-server-go/internal/redis"
	"github.com/generations-connect/connect-server-go/internal/repository"
	"github.com/generations-connect/connect-server-go/internal/service"
	"github.com/generations-connect/connect-server-go/internal/sse"
	"github.com/generations-connect/connect-server-go/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(cfg.IsProduction()); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), config.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	connectionRepo := repository.NewConnectionRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	var provider matching.Provider
	if cfg.ScoringEnabled() {
		provider = matching.NewOpenAIProvider(cfg.ScoringAPIKey, cfg.ScoringBaseURL, cfg.ScoringModel, cfg.ScoringRatePerSecond)
	} else {
		log.Warn().Msg("SCORING_API_KEY not set: ranking with interest overlap only")
	}
	scorer := matching.NewScorer(provider, matching.ScorerConfig{
		RequestTimeout:  cfg.ScoringRequestTimeout(),
		MaxRetries:      cfg.ScoringMaxRetries,
		BackoffBase:     cfg.ScoringBackoffBase(),
		FallbackEnabled: cfg.ScoringFallbackEnabled,
	})

	candidatePool := service.NewCandidatePool(userRepo, connectionRepo, cfg.CandidatePoolSize)
	matchService := service.NewMatchService(candidatePool, scorer, cfg.DefaultTopK)
	connectionService := service.NewConnectionService(connectionRepo, userRepo, broker)
	sessionService := service.NewSessionService(db, sessionRepo, connectionRepo, connectionService, broker, service.SessionConfig{
		VideoRetryWindow: cfg.VideoRetryWindow(),
		MissedGrace:      cfg.MissedSessionGrace(),
	})

	if cfg.GatewaySecret == "" {
		log.Warn().Msg("GATEWAY_SECRET not set: user identity headers are trusted without a signature")
	}

	r := handler.NewRouter(handler.RouterConfig{
		Auth:            middleware.NewAuthMiddleware(userRepo, cfg.GatewaySecret),
		RateLimit:       middleware.NewRateLimitMiddleware(middleware.NewRedisRateLimiter(redisClient.Client), config.DefaultRateLimitPerMin),
		BodyLimit:       middleware.NewBodyLimitMiddleware(0),
		SecurityHeaders: middleware.NewSecurityHeadersMiddleware(cfg.IsProduction()),

		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": db.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
		Events:      handler.NewEventsHandler(broker),
		Matches:     handler.NewMatchHandler(matchService),
		Connections: handler.NewConnectionHandler(connectionService, sessionService),
		Sessions:    handler.NewSessionHandler(sessionService),
	})

	if cfg.MissedSweepEnabled {
		missedJob := jobs.NewMissedSessionJob(sessionService, cfg.MissedSweepInterval(), config.MissedSweepBatchSize)
		missedJob.Start()
		defer missedJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
