package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"jokernotes/internal/auth"
	"jokernotes/internal/changefeed"
	"jokernotes/internal/config"
	"jokernotes/internal/domain/repositories"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/handler"
	"jokernotes/internal/handler/sse"
	"jokernotes/internal/metrics"
	"jokernotes/internal/middleware"
	"jokernotes/internal/repository/memory"
	"jokernotes/internal/repository/postgres"
	authsvc "jokernotes/internal/service/auth"
	"jokernotes/internal/service/docsystem"
	"jokernotes/internal/storage"
)

// changeBus is the local broker or the Redis relay in front of it
type changeBus interface {
	services.ChangePublisher
	services.ChangeSubscriber
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	out, closeLog, err := config.LogOutput(cfg)
	if err != nil {
		log.Fatalf("Failed to set up log output: %v", err)
	}
	defer closeLog()

	logger := config.NewLogger(cfg.Environment, out)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	healthChecks := map[string]handler.HealthCheck{}

	// Authentication: JWKS in deployed environments, shared secret for local development
	var verifier auth.JWTVerifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.JWTIssuer, logger)
	} else {
		verifier, err = auth.NewSecretVerifier(cfg.JWTSecret, cfg.JWTIssuer, logger)
	}
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer verifier.Close()

	// Storage
	var (
		docRepo   repositories.DocumentRepository
		txManager repositories.TransactionManager
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		logger.Info("database connected", "max_conns", 25, "min_conns", 5)

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
				log.Fatalf("Failed to apply schema: %v", err)
			}
			logger.Info("schema ready", "table", tables.Documents)
		}

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		docRepo = postgres.NewDocumentRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool, logger)
		healthChecks["postgres"] = pool.Ping
	case config.StoreMemory:
		docRepo = memory.NewDocumentRepository()
		txManager = memory.NewTransactionManager()
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		log.Fatalf("Unknown store driver %q", cfg.StoreDriver)
	}

	// Change feed
	broker := changefeed.NewBroker(256, logger)
	defer broker.Close()

	var (
		bus      changeBus = broker
		redisBus *changefeed.RedisBus
	)
	if cfg.RedisAddr != "" {
		rdb, err := changefeed.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		redisBus = changefeed.NewRedisBus(rdb, broker, logger)
		defer redisBus.Close()
		bus = redisBus
		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("change feed relayed through redis", "addr", cfg.RedisAddr)
	}

	// Cover images
	var covers services.CoverStore
	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinIOCoverStore(ctx, cfg.MinIO, logger)
		if err != nil {
			log.Fatalf("Failed to set up cover storage: %v", err)
		}
		covers = store
		logger.Info("cover storage ready", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.Bucket)
	} else {
		logger.Warn("cover storage not configured, uploads are disabled")
	}

	// Services
	propagator := docsystem.NewPropagator(docRepo, bus, docsystem.PropagatorConfig{
		Workers:   cfg.PropagationWorkers,
		QueueSize: cfg.PropagationQueueSize,
	}, logger)
	docService := docsystem.NewDocumentService(docRepo, txManager, authsvc.NewOwnerPolicy(), propagator, bus, covers, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.NewHealthHandler(healthChecks).HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())
	handler.NewDocumentHandler(docService, logger).Register(mux)
	handler.NewChangesHandler(docService, bus, sse.DefaultConfig(), logger).Register(mux)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → RateLimit → Metrics → Routes
	var h http.Handler = mux
	h = middleware.Metrics(h)
	h = limiter.Middleware(h)
	h = middleware.Auth(verifier, logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		ExposedHeaders:   []string{handler.PropagationHeader, "Retry-After"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
		// Request contexts end with the process so open change streams close on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	// Propagation stops after the server so walks enqueued by the last requests still run
	propCtx, stopPropagation := context.WithCancel(context.Background())
	defer stopPropagation()
	g.Go(func() error {
		propagator.Run(propCtx)
		return nil
	})

	if redisBus != nil {
		if err := redisBus.Start(gctx); err != nil {
			log.Fatalf("Failed to subscribe to redis: %v", err)
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Sweep()
			}
		}
	})

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		defer stopPropagation()

		err := server.Shutdown(shutdownCtx)

		drained := make(chan struct{})
		go func() {
			propagator.Wait()
			close(drained)
		}()
		select {
		case <-drained:
			logger.Info("propagation drained")
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout, queued propagation jobs are discarded")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
