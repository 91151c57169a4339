package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-escrow-ledger/config"
	httpHandler "card-escrow-ledger/internal/adapter/http/handler"
	"card-escrow-ledger/internal/adapter/messaging/kafka"
	"card-escrow-ledger/internal/adapter/messaging/logsink"
	"card-escrow-ledger/internal/adapter/messaging/webhook"
	"card-escrow-ledger/internal/adapter/storage/memory"
	pgStorage "card-escrow-ledger/internal/adapter/storage/postgres"
	redisStorage "card-escrow-ledger/internal/adapter/storage/redis"
	"card-escrow-ledger/internal/core/authority"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/internal/service"
	"card-escrow-ledger/pkg/logger"
	"card-escrow-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("sink", cfg.Events.Sink).
		Msg("Starting Card Escrow Ledger")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}
	programID, err := domain.ParseIdentity(cfg.Ledger.ProgramID)
	if err != nil {
		log.Fatal().Err(err).Msg("ledger.program_id must be a base58 identity")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	var checkers []ports.HealthChecker

	// Initialize ledger storage
	var transactor ports.Transactor
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		transactor = pgStorage.NewTransactor(pool, programID, cfg.Ledger.LockTimeout)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
		log.Info().Msg("PostgreSQL connected")
	case config.StorageMemory:
		transactor = memory.NewStore(programID, cfg.Ledger.LockTimeout)
		log.Warn().Msg("Using in-memory storage; ledger state is lost on restart")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	log.Info().Msg("Redis connected")

	// Event sink for the outbox relay
	publisher, closePublisher, err := newPublisher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize event sink")
	}
	defer closePublisher()

	// Initialize services
	cardSvc := service.NewCardService(
		transactor,
		authority.NewScheme(programID),
		m,
		service.CardServiceConfig{AllowZeroAmount: cfg.Ledger.AllowZeroAmount},
		logger.Component(log, "card_service"),
	)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	relay := service.NewOutboxRelay(
		transactor,
		publisher,
		m,
		cfg.Events.RelayInterval,
		cfg.Events.BatchSize,
		logger.Component(log, "outbox_relay"),
	)

	var faucetSvc ports.FaucetService
	if cfg.Ledger.FaucetAmount > 0 {
		faucetSvc = service.NewFaucetService(transactor, m, cfg.Ledger.FaucetAmount, logger.Component(log, "faucet"))
		log.Warn().Uint64("cap", cfg.Ledger.FaucetAmount).Msg("Development faucet enabled")
	}

	if err := bootstrapRegistry(ctx, cfg.Ledger.Authority, cardSvc, m, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize registry")
	}

	// Load OpenAPI document for Swagger UI
	var docs *httpHandler.APIDocs
	if spec, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		docs = httpHandler.NewAPIDocs(spec)
		log.Info().Msg("OpenAPI document loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI document not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		CardSvc:        cardSvc,
		FaucetSvc:      faucetSvc,
		SigSvc:         service.NewEd25519SignatureService(),
		NonceStore:     redisStorage.NewNonceStore(rdb),
		TokenSvc:       tokenSvc,
		RateLimiter:    redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: checkers,
		Gatherer:       prometheus.DefaultGatherer,
		Docs:           docs,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return relay.Run(gctx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}

// newPublisher builds the configured event sink and its cleanup func.
func newPublisher(cfg *config.Config, log zerolog.Logger) (ports.EventPublisher, func(), error) {
	sinkLog := logger.Component(log, "event_sink")

	switch cfg.Events.Sink {
	case config.SinkKafka:
		client, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		return kafka.NewPublisher(client, cfg.Kafka.Topic, sinkLog), client.Close, nil
	case config.SinkWebhook:
		httpClient := &http.Client{Timeout: cfg.Webhook.Timeout}
		pub := webhook.NewPublisher(
			cfg.Webhook.URL,
			cfg.Webhook.Secret,
			service.NewHMACSignatureService(),
			httpClient,
			nil,
			sinkLog,
		)
		return pub, func() {}, nil
	default:
		return logsink.NewPublisher(sinkLog), func() {}, nil
	}
}

// bootstrapRegistry creates the registry for a configured authority and
// seeds the total cards gauge from the stored registry.
func bootstrapRegistry(ctx context.Context, authorityStr string, cardSvc ports.CardService, m *metrics.Metrics, log zerolog.Logger) error {
	if authorityStr != "" {
		admin, err := domain.ParseIdentity(authorityStr)
		if err != nil {
			return fmt.Errorf("ledger.authority: %w", err)
		}
		_, err = cardSvc.Initialize(ctx, ports.InitializeRequest{Authority: admin})
		switch {
		case err == nil:
			log.Info().Str("authority", admin.String()).Msg("Registry initialized")
		case errors.Is(err, domain.ErrAlreadyInitialized):
			log.Info().Msg("Registry already initialized")
		default:
			return err
		}
	}

	registry, err := cardSvc.GetRegistry(ctx)
	switch {
	case err == nil:
		m.SetTotalCards(registry.TotalCards)
	case errors.Is(err, domain.ErrNotInitialized):
		log.Warn().Msg("Registry not initialized; card creation is disabled until POST /api/v1/registry/initialize")
	default:
		return err
	}
	return nil
}
