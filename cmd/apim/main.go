// Package main is the entrypoint for the APIM management API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/apimplane/apim/internal/audit"
	"github.com/apimplane/apim/internal/cache"
	"github.com/apimplane/apim/internal/config"
	"github.com/apimplane/apim/internal/events"
	"github.com/apimplane/apim/internal/handler"
	"github.com/apimplane/apim/internal/kafka"
	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/middleware"
	"github.com/apimplane/apim/internal/notifier"
	"github.com/apimplane/apim/internal/repository"
	"github.com/apimplane/apim/internal/scheduler"
	"github.com/apimplane/apim/internal/server"
	"github.com/apimplane/apim/internal/service"
	"github.com/apimplane/apim/internal/upgrader"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", config.SanitizeError(err, cfg.DatabaseURL, cfg.RedisURL))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	recorder := metrics.NewPrometheus(nil)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("database_url", config.RedactURL(cfg.DatabaseURL)))
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to database")

	sqlDB, err := audit.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	auditStore, err := audit.NewDBStore(sqlDB)
	if err != nil {
		return err
	}
	installation, err := upgrader.NewDBStore(sqlDB)
	if err != nil {
		return err
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis", slog.String("redis_url", config.RedactURL(cfg.RedisURL)))
		return err
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	runner := upgrader.NewRunner(installation, recorder, logger,
		upgrader.NewDefaultRolesUpgrader(repo, cfg.DefaultOrganizationID, logger),
		upgrader.NewPlanOrderUpgrader(repo, logger),
		upgrader.NewApiKeySubscriptionsUpgrader(repo, logger),
		upgrader.NewAlertTriggerReferenceUpgrader(repo, logger),
	)
	if cfg.UpgradersEnabled {
		if _, err := runner.Run(ctx, nil); err != nil {
			return fmt.Errorf("upgraders: %w", err)
		}
	}

	portalCache := cache.NewPortalCache(cacheClient, cache.PortalOptions{
		LocalSize: cfg.PortalCacheSize,
		LocalTTL:  cfg.PortalCacheTTL,
		RemoteTTL: cfg.PortalRedisTTL,
	}, recorder, logger)

	var remote events.Publisher = events.NoopPublisher{}
	var producerClient *kgo.Client
	if cfg.KafkaEnabled() {
		producerClient, err = setupProducer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer producerClient.Close()
		remote = events.NewKafkaPublisher(kafka.NewProducer(producerClient, cfg.KafkaEventsTopic), recorder, logger)
	}
	// This node's portal entries are dropped before the event leaves it.
	publisher := events.NewLocalPublisher(remote, logger, portalCache.HandleEvent)

	auditSvc := service.NewAuditService(auditStore, recorder, logger)
	owners := service.NewPrimaryOwnerDomainService(repo, auditSvc)
	members := service.NewMembershipService(repo, owners, auditSvc)
	plans := service.NewPlanService(repo, auditSvc, publisher, logger)
	subs := service.NewSubscriptionService(repo, auditSvc, publisher, logger)
	apis := service.NewApiService(service.ApiServiceDeps{
		Store:        repo,
		Plans:        plans,
		Owners:       owners,
		Members:      members,
		Audit:        auditSvc,
		Publisher:    publisher,
		Logger:       logger,
		PrimaryOwner: service.PrimaryOwnerMode(cfg.ApiPrimaryOwnerMode),
	})
	tokens := service.NewTokenService(repo, logger).WithInvalidator(cacheClient)

	g, gctx := errgroup.WithContext(ctx)

	var kafkaHealth handler.HealthChecker
	if cfg.KafkaEnabled() {
		kafkaHealth = producerClient
		if cfg.NotifierEnabled() {
			n, err := notifier.New(notifier.Config{
				URL:         cfg.NotifierWebhookURL,
				Secret:      cfg.NotifierWebhookSecret,
				MaxAttempts: cfg.NotifierMaxAttempts,
				QueueSize:   cfg.NotifierQueueSize,
			}, recorder, logger)
			if err != nil {
				return fmt.Errorf("notifier: %w", err)
			}
			g.Go(func() error { return n.Run(gctx) })

			// One delivery per cluster: the notifier shares the group.
			shared, err := startListener(gctx, g, cfg, cfg.KafkaConsumerGroup, recorder, logger, n.Notify)
			if err != nil {
				return err
			}
			defer shared.Close()
		}

		// Every node drops the portal entries of events published elsewhere.
		// No group: each node reads the whole topic from the log end.
		local, err := startListener(gctx, g, cfg, "", recorder, logger, portalCache.HandleEvent)
		if err != nil {
			return err
		}
		defer local.Close()
	} else if cfg.NotifierEnabled() {
		logger.Warn("webhook notifications need Kafka, notifier disabled")
	}

	sched := scheduler.New(recorder, logger, time.Minute)
	if err := sched.ScheduleSubscriptionExpiry(cfg.SubscriptionExpiryCron, subs); err != nil {
		return err
	}
	g.Go(func() error { return sched.Run(gctx) })

	upgraderNames := make([]string, 0, len(runner.Upgraders()))
	for _, u := range runner.Upgraders() {
		upgraderNames = append(upgraderNames, u.Name())
	}

	router := server.NewRouter(server.Handlers{
		Health:        handler.NewHealthHandler(repo, cacheClient, kafkaHealth),
		Metrics:       handler.NewMetricsHandler(recorder.Handler(), nil),
		Apis:          handler.NewApiHandler(apis, owners, logger),
		Plans:         handler.NewPlanHandler(plans, logger),
		Subscriptions: handler.NewSubscriptionHandler(subs, logger),
		Members:       handler.NewMemberHandler(apis, members, owners, logger),
		Audits:        handler.NewAuditHandler(apis, auditSvc, logger),
		Tokens:        handler.NewTokenHandler(tokens, logger),
		Portal: handler.NewPortalHandler(service.NewPortalService(repo, owners), portalCache, handler.PortalConfig{
			OrganizationID: cfg.DefaultOrganizationID,
			BaseURL:        cfg.BaseURL,
			Entrypoints:    cfg.GetGatewayEntrypoints(),
			MaxAge:         cfg.PortalCacheMaxAge,
		}, logger),
		Admin: handler.NewAdminHandler(handler.AdminDeps{
			Tokens:       repo,
			Installation: installation,
			Upgraders:    upgraderNames,
			Expirer:      subs,
			Version:      version,
		}, logger),
	}, server.RouterConfig{
		Logger:   logger,
		Recorder: recorder,
		Auth: middleware.AuthConfig{
			Tokens:      repo,
			Cache:       cacheClient,
			MinDuration: middleware.DefaultMinAuthDuration,
		},
		RateLimit: middleware.RateLimitConfig{
			Limiter:       cacheClient,
			TokenEnabled:  cfg.RateLimitAPIEnabled,
			PortalEnabled: cfg.RateLimitPortalEnabled,
			PortalRPS:     cfg.RateLimitPortalRPS,
			PortalBurst:   cfg.RateLimitPortalBurst,
		},
		CORS: corsConfig(cfg),
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	if producerClient != nil {
		srv.OnShutdown("kafka producer", producerClient.Flush)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"kafka", cfg.KafkaEnabled(),
		"version", version,
	)
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupProducer connects the producing client and creates the events topic.
func setupProducer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*kgo.Client, error) {
	client, err := kafka.NewClient(kafka.Config{
		Brokers:         cfg.GetKafkaBrokers(),
		ClientID:        cfg.KafkaClientID,
		DeliveryTimeout: cfg.KafkaDeliveryTimeout,
	}, logger, kgo.DefaultProduceTopic(cfg.KafkaEventsTopic))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}

	if err := kafka.EnsureTopics(pingCtx, kadm.NewClient(client), kafka.TopicSpec{
		Partitions:        cfg.KafkaTopicPartitions,
		ReplicationFactor: cfg.KafkaReplicationFactor,
	}, cfg.KafkaEventsTopic); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("connected to Kafka", "brokers", cfg.GetKafkaBrokers(), "topic", cfg.KafkaEventsTopic)
	return client, nil
}

func startListener(ctx context.Context, g *errgroup.Group, cfg *config.Config, group string, recorder metrics.Recorder, logger *slog.Logger, handlers ...events.Handler) (*kafka.ReactiveConsumer, error) {
	consumer, err := kafka.NewReactiveConsumer(kafka.Config{
		Brokers:  cfg.GetKafkaBrokers(),
		ClientID: cfg.KafkaClientID,
		Group:    group,
		Topics:   []string{cfg.KafkaEventsTopic},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer %q: %w", group, err)
	}
	listener := events.NewListener(consumer, recorder, logger.With("group", group), handlers...)
	g.Go(func() error { return listener.Run(ctx) })
	return consumer, nil
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	return c
}
