package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/artifact"
	"github.com/Ramsey-B/fern/internal/repositories/instrument"
	"github.com/Ramsey-B/fern/internal/repositories/parsejob"
	"github.com/Ramsey-B/fern/internal/repositories/refreshjob"
	"github.com/Ramsey-B/fern/internal/repositories/snapshot"
	"github.com/Ramsey-B/fern/internal/repositories/watchlist"
	"github.com/Ramsey-B/fern/pkg/artifacts"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/edgar"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/freshness"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/parser"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/refresh"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/server"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/worker"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if cfg.TracingEnabled {
		otlpConfig := exporters.DefaultOTLPConfig()
		otlpConfig.Endpoint = cfg.TracingOTLPEndpoint
		otlpConfig.Protocol = cfg.TracingOTLPProtocol

		shutdown, err := tracing.Setup(ctx, cfg.AppName, otlpConfig)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to shut down tracing")
			}
		}()
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build application")
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start application")
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// dbDependency makes the database pool a startup dependency so the
// server and worker pool start after it (and migrations).
type dbDependency struct {
	cfg    *config.Config
	logger ectologger.Logger
	db     database.DB
}

func (d *dbDependency) GetName() string     { return "database" }
func (d *dbDependency) DependsOn() []string { return nil }

func (d *dbDependency) Start(ctx context.Context) error {
	if d.db != nil {
		return d.db.PingContext(ctx)
	}

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          d.cfg.DatabaseDriver,
		Host:            d.cfg.DatabaseHost,
		Port:            d.cfg.DatabasePort,
		UserName:        d.cfg.DatabaseUserName,
		Password:        d.cfg.DatabasePassword,
		Name:            d.cfg.DatabaseName,
		SSLMode:         d.cfg.DatabaseSSLMode,
		MaxOpenConns:    d.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    d.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: d.cfg.DatabaseConnMaxLifetime,
	}, d.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(d.logger, &database.MigrationConfig{
		MigrationFolderPath: d.cfg.DatabaseMigrationFolderPath,
		Version:             uint(d.cfg.DatabaseMigrationVersion),
		Force:               d.cfg.DatabaseMigrationForce,
	})
	if err := migrations.MigrateDatabase(d.cfg.DatabaseName, db.Unsafe()); err != nil {
		return err
	}

	d.db = db
	return nil
}

func (d *dbDependency) Stop(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// app owns the startup graph plus the long-lived clients that need
// closing on shutdown.
type app struct {
	startup  *startup.Startup
	producer *kafka.Producer
	redis    *fernredis.Client
	logger   ectologger.Logger
}

func (a *app) Start(ctx context.Context) error { return a.startup.Start(ctx) }

func (a *app) Stop(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	if a.producer != nil {
		if perr := a.producer.Close(); perr != nil {
			a.logger.WithError(perr).Warn("Failed to close kafka producer")
		}
	}
	if a.redis != nil {
		if rerr := a.redis.Close(); rerr != nil {
			a.logger.WithError(rerr).Warn("Failed to close redis client")
		}
	}
	return err
}

func buildApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*app, error) {
	dbDep := &dbDependency{cfg: cfg, logger: logger}

	// The pool has to exist before the wired components, so connect now and
	// let the startup dependency reuse the handle.
	if err := dbDep.Start(ctx); err != nil {
		return nil, err
	}
	db := dbDep.db

	artifactRepo := artifact.NewRepository(db, logger)
	jobRepo := parsejob.NewRepository(db, logger)
	instrumentRepo := instrument.NewRepository(db, logger)
	snapshotRepo := snapshot.NewRepository(db, logger)
	refreshJobRepo := refreshjob.NewRepository(db, logger)
	watchlistRepo := watchlist.NewRepository(db, logger)

	var redisClient *fernredis.Client
	var locker *fernredis.Locker
	if cfg.RedisEnabled {
		var err error
		redisClient, err = fernredis.NewClient(fernredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, err
		}
		locker = fernredis.NewLocker(redisClient, "fern:lock:")
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}
	emitter := events.NewEmitter(producer, logger)

	limiter := edgar.NewLimiter(cfg.SecMaxRequestRate, cfg.SecRequestBurst)
	edgarClient, err := edgar.NewClient(edgar.ClientConfig{
		UserAgent:   cfg.SecEdgarUserAgent,
		MaxAttempts: cfg.SecRetryMaxAttempts,
		Timeout:     cfg.SecRequestTimeout,
	}, limiter, logger)
	if err != nil {
		return nil, err
	}

	store := artifacts.NewStore(cfg.StorageBasePath, artifactRepo, logger)
	guard := freshness.NewGuard(snapshotRepo, freshness.NewRedisLocker(locker), time.Duration(cfg.RefreshTTLHours)*time.Hour, logger)

	orchestrator := ingestion.NewOrchestrator(ingestion.Config{
		SelectionRules: models.SelectionRules{
			Lookback10K:       cfg.Sec10KLookback,
			Lookback10Q:       cfg.Sec10QLookback,
			IncludeAmendments: cfg.SecIncludeAmendments,
		},
		ParserVersion:    cfg.ParserVersion,
		ParseMaxAttempts: cfg.ParseMaxAttempts,
	}, edgarClient, store, guard, instrumentRepo, jobRepo, emitter, logger)

	refreshService := refresh.NewService(refreshJobRepo, watchlistRepo, orchestrator, logger)

	parseExecutor := parser.NewParser(store, artifactRepo, logger)
	poolConfig := worker.DefaultPoolConfig()
	poolConfig.WorkerCount = cfg.ParseWorkerCount
	poolConfig.PollInterval = cfg.ParsePollInterval
	poolConfig.LockGracePeriod = cfg.ParseLockGracePeriod
	pool := worker.NewPool(jobRepo, parseExecutor, emitter, poolConfig, logger)

	if err := registerDependencies(logger, artifactRepo, jobRepo, watchlistRepo, refreshJobRepo, orchestrator, refreshService, emitter); err != nil {
		return nil, err
	}

	checker := health.NewChecker(db, redisClient, version)
	httpServer := server.New(cfg, logger, checker)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(dbDep)
	boot.AddDependency(pool)
	boot.AddDependency(httpServer)

	return &app{
		startup:  boot,
		producer: producer,
		redis:    redisClient,
		logger:   logger,
	}, nil
}

// registerDependencies populates the default container the route handlers
// resolve from.
func registerDependencies(
	logger ectologger.Logger,
	artifactRepo *artifact.Repository,
	jobRepo *parsejob.Repository,
	watchlistRepo *watchlist.Repository,
	refreshJobRepo *refreshjob.Repository,
	orchestrator *ingestion.Orchestrator,
	refreshService *refresh.Service,
	emitter *events.Emitter,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*artifact.Repository](container, artifactRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*parsejob.Repository](container, jobRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*watchlist.Repository](container, watchlistRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*refreshjob.Repository](container, refreshJobRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ingestion.Orchestrator](container, orchestrator); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*refresh.Service](container, refreshService); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*events.Emitter](container, emitter)
}
