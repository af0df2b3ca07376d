package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-credential-service/config"
	"github.com/oksasatya/go-credential-service/internal/application"
	"github.com/oksasatya/go-credential-service/internal/infrastructure/cache"
	pginfra "github.com/oksasatya/go-credential-service/internal/infrastructure/postgres"
	"github.com/oksasatya/go-credential-service/internal/infrastructure/rabbitmq"
	"github.com/oksasatya/go-credential-service/internal/infrastructure/search"
	handlers "github.com/oksasatya/go-credential-service/internal/interface/http"
	"github.com/oksasatya/go-credential-service/internal/router"
	"github.com/oksasatya/go-credential-service/internal/worker"
	"github.com/oksasatya/go-credential-service/pkg/helpers"
	"github.com/oksasatya/go-credential-service/pkg/mailer"
	"github.com/oksasatya/go-credential-service/pkg/token"
	"github.com/oksasatya/go-credential-service/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
		DSN:             cfg.PostgresDSN(),
		Size:            cfg.DBPoolSize,
		Overflow:        cfg.DBMaxOverflow,
		MaxConnLifetime: cfg.DBMaxConnLife,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if cfg.MigrationsEnabled {
		logger.Info("running migrations...")
		if err := pginfra.MigrateUp(cfg.PostgresDSN()); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
	}

	// Redis
	rdb, err := cache.NewClient(ctx, cache.ClientConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	store := cache.NewEphemeralStore(rdb, cfg.RedisDefaultTTL)

	// Tokens
	priv, pub, err := token.LoadKeyPair(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Fatalf("failed to load signing keys: %v", err)
	}
	tokens, err := token.NewService(token.Options{
		PrivateKey: priv,
		PublicKey:  pub,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Issuer:     cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatalf("failed to init token service: %v", err)
	}

	// RabbitMQ
	broker, err := rabbitmq.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer broker.Close()
	if err := broker.DeclareTopicExchange(cfg.RabbitMQEventsExchange); err != nil {
		logger.Fatalf("declare exchange: %v", err)
	}
	if err := broker.DeclareQueue(cfg.RabbitMQMailQueue); err != nil {
		logger.Fatalf("declare queue: %v", err)
	}
	var mail application.MailSender = broker.MailQueue(cfg.RabbitMQMailQueue)
	if !cfg.MailSendEnabled {
		mail = mailer.LogSender{Logger: logger}
	}

	// Elasticsearch (optional)
	var indexer application.CredentialIndexer
	if cfg.SearchEnabled() {
		es, err := search.NewClient(cfg.ElasticsearchAddrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.Fatalf("failed to init elasticsearch: %v", err)
		}
		indexer = search.NewIndexer(es, cfg.ESCredentialsIndex)
	}

	// Metrics and background jobs
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatcher := worker.NewDispatcher(worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
		MaxRetries:  cfg.WorkerMaxRetries,
		JobTimeout:  cfg.WorkerJobTimeout,
	}, logger, metrics)
	dispatcher.Start()

	svc, err := application.NewCredentialService(application.Config{
		AppName:           cfg.AppName,
		UserTopic:         cfg.UserTopic,
		ResetTokenTTL:     cfg.ResetTokenTTL,
		ActivationCodeTTL: cfg.ActivationCodeTTL,
		ActivateURL:       cfg.ActivateURL,
		ResetPasswordURL:  cfg.ResetPasswordURL,
		BcryptCost:        cfg.BcryptCost,
	}, application.Deps{
		UnitOfWork:      pginfra.NewUnitOfWorkFactory(pool),
		Tokens:          tokens,
		ResetStore:      store.Namespace("reset"),
		ActivationStore: store.Namespace("activation"),
		Events:          broker.EventPublisher(cfg.RabbitMQEventsExchange),
		Mail:            mail,
		Indexer:         indexer,
		Scheduler:       dispatcher,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("failed to init credential service: %v", err)
	}

	validation.Init()

	r := router.NewEngine(router.EngineConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AccessLog:      cfg.HTTPLogEnabled,
	})
	deps := router.ModuleDeps{
		Handler: handlers.NewCredentialHandler(svc, logger, cfg.CookieDomain, cfg.CookieSecure),
		Auth:    svc,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = metrics
	}
	reg := router.NewRegistry(r)
	router.InitModules(reg, deps)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}
	if err := dispatcher.Shutdown(ctxShutdown); err != nil {
		logger.Errorf("background jobs abandoned: %v", err)
	}
	logger.Info("server exited properly")
}
