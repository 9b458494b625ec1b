// cmd/oracle-worker/run.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commonaws "oracle-worker/internal/common/aws"
	"oracle-worker/internal/common/config"
	"oracle-worker/internal/common/database"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/observability"
	"oracle-worker/internal/common/queue"
	"oracle-worker/internal/common/server"
	"oracle-worker/internal/models"
	llmsynthesis "oracle-worker/internal/workers/ai-conversation/llm-synthesis"
	sendnotification "oracle-worker/internal/workers/communication/send-notification"
	queryelasticsearch "oracle-worker/internal/workers/data-access/query-elasticsearch"
	querypostgresql "oracle-worker/internal/workers/data-access/query-postgresql"
	validatesubscription "oracle-worker/internal/workers/infrastructure/validate-subscription"
	extractcards "oracle-worker/internal/workers/oracle/extract-cards"
	normalizezodiac "oracle-worker/internal/workers/oracle/normalize-zodiac"
	processchatturn "oracle-worker/internal/workers/oracle/process-chat-turn"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the queue worker and the health/metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	zapLog, log := newLogger(cfg)
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLog.Info("Starting oracle worker...", zap.String("version", cfg.App.Version))

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown(context.Background())

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		var err error
		if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rc *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		if rc, err = database.NewRedis(cfg.Database.Redis); err != nil {
			return err
		}
		return rc.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		return err
	}
	defer rc.Close()
	zapLog.Info("Redis connected successfully")

	// --- Static tables ---
	deck, err := loadDeck(cfg.Extraction)
	if err != nil {
		return err
	}
	extractor, err := extractcards.NewExtractor(deck, extractcards.LoadConfig(cfg.Extraction))
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}

	table, err := normalizezodiac.LoadTable()
	if err != nil {
		return fmt.Errorf("load zodiac table: %w", err)
	}
	if err := table.Validate(); err != nil {
		zapLog.Warn("Zodiac table incomplete", zap.Error(err))
	}

	// --- Subscription gate ---
	subCfg := validatesubscription.ConfigFrom(cfg)
	var store validatesubscription.Store
	if cfg.Subscription.Store == "memory" {
		if store, err = validatesubscription.NewMemoryStore(cfg.Subscription.MemoryCacheSize, subCfg.CacheTTL); err != nil {
			return err
		}
	} else {
		store = validatesubscription.NewRedisStore(rc.Client, subCfg.KeyPrefix, subCfg.CacheTTL)
	}

	billing := validatesubscription.NewHTTPBillingClient(cfg.APIs.Billing.BaseURL, cfg.APIs.Billing.APIKey, subCfg.Timeout)
	validator := validatesubscription.NewValidator(subCfg, billing, store, log)

	// Only per-process stores need invalidations fanned out.
	var bus *validatesubscription.InvalidationBus
	if cfg.Subscription.Store == "memory" && cfg.Subscription.InvalidationChannel != "" {
		bus = validatesubscription.NewInvalidationBus(rc.Client, cfg.Subscription.InvalidationChannel, log)
		validator.WithBroadcaster(bus)
	}

	gate := validatesubscription.NewHandler(subCfg, validator, validatesubscription.NewSQLCustomerResolver(pg.DB), log)

	// --- Optional collaborators ---
	archiver, err := newArchiver(ctx, cfg, zapLog, log)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}

	// --- Pipeline ---
	handler := processchatturn.NewHandler(processchatturn.ConfigFrom(cfg), processchatturn.Dependencies{
		Store:      querypostgresql.NewHandler(querypostgresql.ConfigFrom(cfg), pg.DB, log),
		Generator:  llmsynthesis.NewHandler(llmsynthesis.ConfigFrom(cfg), log),
		Extractor:  extractor,
		Normalizer: normalizezodiac.NewNormalizer(table),
		Gate:       gate,
		Archiver:   archiver,
		Notifier:   notifier,
		Obs:        obs,
		Logger:     log,
	})

	q, err := queue.NewRedisQueue(rc.Client, queue.ConfigFrom(cfg.Queue), log)
	if err != nil {
		return err
	}
	worker := queue.NewWorker(q, handler, queue.WorkerConfigFrom(cfg.Worker, cfg.Queue), log)

	// --- Health & Metrics Server ---
	opts := server.Options{
		Checks: map[string]server.Check{
			"worker":   func(context.Context) error { return worker.Ready() },
			"postgres": pg.Ping,
			"redis":    rc.Ping,
		},
		Logger: log,
	}
	if cfg.Subscription.WebhookSecret != "" {
		opts.Webhook = validatesubscription.NewWebhookHandler(validator, cfg.Subscription.WebhookSecret, log)
	} else {
		zapLog.Warn("Billing webhook disabled: subscription.webhook_secret is empty")
	}
	router := server.NewRouter(opts)
	srv := server.New(cfg.Server, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		reportQueueDepth(gctx, q, 15*time.Second, log)
		return nil
	})
	if bus != nil {
		g.Go(func() error { return bus.Listen(gctx, store, nil) })
	}

	zapLog.Info("Oracle worker running",
		zap.String("queue", cfg.Queue.Name),
		zap.String("mode", string(q.Mode())),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)

	err = g.Wait()
	zapLog.Info("Oracle worker stopped gracefully")
	return err
}

func loadDeck(cfg config.ExtractionConfig) (models.Deck, error) {
	if cfg.DeckPath != "" {
		return extractcards.LoadDeckFromFile(cfg.DeckPath)
	}
	return extractcards.LoadDeck()
}

// newArchiver returns nil when the reading archive is disabled.
func newArchiver(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (processchatturn.Archiver, error) {
	if !cfg.Database.Elasticsearch.Enabled {
		return nil, nil
	}

	var es *database.ElasticsearchClient
	err := retryWithBackoff(func() error {
		var err error
		if es, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
			return err
		}
		return es.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		return nil, err
	}

	esCfg := queryelasticsearch.ConfigFrom(cfg.Database.Elasticsearch)
	if err := es.EnsureIndex(ctx, esCfg.Index); err != nil {
		return nil, err
	}
	zapLog.Info("Elasticsearch connected successfully", zap.String("index", esCfg.Index))
	return queryelasticsearch.NewHandler(esCfg, es.Client, log), nil
}

// newNotifier always returns a notifier; it reports "disabled" when SNS is off.
func newNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) (processchatturn.Notifier, error) {
	var publisher sendnotification.Publisher
	if cfg.Notifications.SNS.Enabled {
		sns, err := commonaws.NewSNSClient(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN)
		if err != nil {
			return nil, err
		}
		publisher = sns
	}
	return sendnotification.NewHandler(sendnotification.ConfigFrom(cfg), publisher, log), nil
}

func reportQueueDepth(ctx context.Context, q *queue.RedisQueue, every time.Duration, log logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := q.Depth(ctx); err != nil && ctx.Err() == nil {
				log.Debug("queue depth unavailable", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
