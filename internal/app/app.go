package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carelink-solutions/carelink-auth/internal/auth"
	"github.com/carelink-solutions/carelink-auth/internal/config"
	"github.com/carelink-solutions/carelink-auth/internal/event"
	handler "github.com/carelink-solutions/carelink-auth/internal/handler/http"
	"github.com/carelink-solutions/carelink-auth/internal/repository"
	"github.com/carelink-solutions/carelink-auth/internal/repository/memory"
	mongorepo "github.com/carelink-solutions/carelink-auth/internal/repository/mongo"
	"github.com/carelink-solutions/carelink-auth/internal/repository/postgres"
	"github.com/carelink-solutions/carelink-auth/internal/service"
	"github.com/carelink-solutions/carelink-auth/migrations"
	"github.com/carelink-solutions/carelink-auth/pkg/database"
	"github.com/carelink-solutions/carelink-auth/pkg/health"
	pkgkafka "github.com/carelink-solutions/carelink-auth/pkg/kafka"
	"github.com/carelink-solutions/carelink-auth/pkg/middleware"
	"github.com/carelink-solutions/carelink-auth/pkg/tracing"
)

// ServiceName labels logs, metrics, traces and the mongo client.
const ServiceName = "carelink-auth"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	producer       *pkgkafka.Producer
	closeStore     func(context.Context) error
	tracerShutdown func(context.Context) error
}

// store is an opened credential store with its readiness check and
// teardown.
type store struct {
	repo  repository.UserRepository
	check health.Checker
	close func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerCfg := tracing.DefaultConfig(ServiceName)
	tracerCfg.Environment = cfg.Environment
	tracerCfg.OTLPEndpoint = cfg.OTelEndpoint
	tracerCfg.SampleRate = cfg.OTelSampleRate
	tracerCfg.Enabled = cfg.OTelEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, tracerCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	healthHandler := health.NewHandler()
	if st.check != nil {
		healthHandler.RegisterCritical(cfg.StoreDriver, st.check)
	}

	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher = event.Discard{}
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(producer, logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.JWTAccessExpiry,
		RefreshTTL:    cfg.JWTRefreshExpiry,
	})
	if err != nil {
		_ = st.close(context.Background())
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("init token service: %w", err)
	}

	userService := service.NewUserService(
		st.repo,
		auth.NewBcryptHasher(cfg.BcryptCost),
		tokens,
		publisher,
		logger,
		service.Options{
			StoreTimeout: cfg.StoreTimeout,
			AdminIDs:     cfg.AdminIDSet(),
		},
	)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: ServiceName,
		Service:     userService,
		Tokens:      tokens,
		Cookies:     auth.NewCookiePolicy(cfg.IsDevelopment(), cfg.JWTAccessExpiry),
		Health:      healthHandler,
		Logger:      logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
			ExposedHeaders:   []string{middleware.CorrelationIDHeader},
		},
		PprofCIDRs: cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		httpServer:     httpServer,
		producer:       producer,
		closeStore:     st.close,
		tracerShutdown: tracerShutdown,
	}, nil
}

// openStore connects the configured credential store driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		mc := cfg.Mongo(ServiceName)
		mc.PoolMonitor = database.NewMongoPoolMonitor(ServiceName)
		client, err := database.NewMongoClient(ctx, &mc, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		logger.Info("connected to MongoDB", slog.String("database", mc.Database))

		repo := mongorepo.NewUserRepository(client.Database(mc.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}

		return &store{
			repo:  repo,
			check: database.MongoHealthCheck(client),
			close: client.Disconnect,
		}, nil

	case config.DriverPostgres:
		pc := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pc, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", pc.Host),
			slog.Int("port", pc.Port),
			slog.String("database", pc.DBName),
		)
		database.RegisterPoolMetrics(pool, ServiceName)

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		return &store{
			repo:  postgres.NewUserRepository(pool),
			check: pool.Ping,
			close: func(context.Context) error { pool.Close(); return nil },
		}, nil

	default:
		logger.Warn("using in-memory credential store; data is lost on restart")
		return &store{
			repo:  memory.NewUserRepository(),
			close: func(context.Context) error { return nil },
		}, nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown stops the components in order: drain HTTP, flush spans, close
// the Kafka producer, then close the store.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if err := a.closeStore(storeCtx); err != nil {
		a.logger.Error("credential store close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
