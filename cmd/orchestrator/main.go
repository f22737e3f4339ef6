// cmd/orchestrator/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"commerce-orchestrator/internal/catalog"
	"commerce-orchestrator/internal/common/aws"
	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/database"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/observability"
	"commerce-orchestrator/internal/common/ratelimit"
	"commerce-orchestrator/internal/cost"
	"commerce-orchestrator/internal/handlers"
	"commerce-orchestrator/internal/handoff"
	"commerce-orchestrator/internal/hybrid"
	"commerce-orchestrator/internal/llm"
	"commerce-orchestrator/internal/models"
	"commerce-orchestrator/internal/nlu"
	"commerce-orchestrator/internal/notify"
	"commerce-orchestrator/internal/orchestrator"
	"commerce-orchestrator/internal/storage"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting conversation orchestrator...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Repositories ---
	conversations := storage.NewConversationRepo(pg.DB)
	handoffs := storage.NewHandoffRepo(pg.DB)
	costs := storage.NewCostRepo(pg.DB)
	alerts := storage.NewAlertRepo(pg.DB)
	merchants := storage.NewMerchantRepo(pg.DB)
	contextCache := storage.NewContextCache(rdb.Client, 30*time.Minute)
	hybridStore := storage.NewHybridModeStore(rdb.Client)
	sessions := storage.NewWidgetSessionStore(rdb.Client, 24*time.Hour)

	// --- Operator notification channels ---
	var notifier *notify.OperatorNotifier
	{
		var sesClient *aws.SESClient
		var snsClient *aws.SNSClient
		if cfg.Notifications.Email.Enabled {
			sesClient, err = aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client init failed", zap.Error(err))
			}
		}
		if cfg.Notifications.SMS.Enabled {
			snsClient, err = aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client init failed", zap.Error(err))
			}
		}
		notifier = notify.NewOperatorNotifier(sesClient, snsClient, cfg.Notifications, log)
	}

	// --- LLM routing and cost accounting ---
	tracker := cost.NewTracker(
		llm.NewPricingTable(), costs, alerts, merchants, notifier,
		cfg.Budget.Thresholds, cfg.Budget.DefaultMonthlyUSD, log,
	)

	primary, err := llm.NewProvider(llm.ProviderName(cfg.LLM.Primary), cfg.LLM.Providers[cfg.LLM.Primary])
	if err != nil {
		zapLog.Fatal("primary provider init failed", zap.Error(err))
	}
	var backup llm.Provider
	if cfg.LLM.Backup != "" {
		backup, err = llm.NewProvider(llm.ProviderName(cfg.LLM.Backup), cfg.LLM.Providers[cfg.LLM.Backup])
		if err != nil {
			zapLog.Fatal("backup provider init failed", zap.Error(err))
		}
	}
	router := llm.NewRouter(primary, backup, tracker, config.GetDuration(cfg.LLM.RequestTimeout), log)

	// every configured provider is addressable by merchant-level overrides
	for name, providerCfg := range cfg.LLM.Providers {
		if name == cfg.LLM.Primary || name == cfg.LLM.Backup {
			continue
		}
		p, err := llm.NewProvider(llm.ProviderName(name), providerCfg)
		if err != nil {
			zapLog.Fatal("provider init failed", zap.String("provider", name), zap.Error(err))
		}
		router.RegisterProvider(p)
	}

	zapLog.Info("LLM router ready",
		zap.String("primary", cfg.LLM.Primary),
		zap.String("backup", cfg.LLM.Backup),
		zap.Int("providers", len(cfg.LLM.Providers)),
	)

	// --- Pipeline components ---
	classifier := nlu.NewClassifier(router, cfg.LLM.Temperature, cfg.LLM.MaxTokens, log)
	clarifier := nlu.NewClarifier()
	detector := handoff.NewDetector(
		cfg.Handoff.Keywords, cfg.Handoff.ConfidenceTriggerCount, cfg.Handoff.LoopTriggerCount, log,
	)
	arbiter := hybrid.NewArbiter(hybridStore, time.Duration(cfg.Hybrid.WindowMinutes)*time.Minute, log)

	limiter := ratelimit.NewRegistry(cfg.Catalog.RateLimitPerSec, cfg.Catalog.RateLimitBurst)
	search := catalog.NewSearch(esClient.Client, cfg.Database.Elasticsearch.ProductIndex, log)
	commerce := catalog.NewCommerce(cfg.Catalog, limiter, log)

	sender := notify.NewWebhookSender(
		cfg.Channels.Webhooks, cfg.Channels.DefaultWebhook,
		config.GetDuration(cfg.Channels.SendTimeout), log,
	)

	registry := handlers.NewRegistry()
	productSearch := handlers.NewProductSearchHandler(search, log)
	registry.Register(models.IntentProductSearch, productSearch)
	registry.Register(models.IntentGreeting, handlers.NewGreetingHandler())
	registry.Register(models.IntentClarification, handlers.NewClarificationHandler(productSearch))
	registry.Register(models.IntentCartView, handlers.NewCartViewHandler(commerce))
	registry.Register(models.IntentCartAdd, handlers.NewCartAddHandler(commerce, search))
	registry.Register(models.IntentCheckout, handlers.NewCheckoutHandler(commerce))
	registry.Register(models.IntentOrderTracking, handlers.NewOrderTrackingHandler(commerce))
	registry.Register(models.IntentHumanHandoff, handlers.NewHumanHandoffHandler())
	registry.Register(models.IntentForgetPreferences, handlers.NewForgetPreferencesHandler())
	registry.Register(models.IntentUnknown, handlers.NewUnknownHandler())
	registry.MustComplete()

	orch := orchestrator.New(
		conversations, contextCache, handoffs, merchants,
		classifier, clarifier, detector, arbiter,
		registry, sender, sessions, obs,
		orchestrator.Config{
			ReopenWindow:   time.Duration(cfg.Handoff.ReopenWindow) * time.Minute,
			MaxConcurrency: cfg.App.MaxConcurrent,
		},
		log,
	)

	// --- Background schedulers ---
	lifecycle := handoff.NewLifecycle(
		handoffs, notifier, cfg.Handoff,
		time.Duration(cfg.Schedulers.HandoffInterval)*time.Minute, log,
	)
	lifecycle.Start(ctx)
	defer lifecycle.Stop()

	cleanup := orchestrator.NewCleanup(
		sessions, time.Duration(cfg.Schedulers.CleanupInterval)*time.Minute, 200, log,
	)
	cleanup.Start(ctx)
	defer cleanup.Stop()

	budgetEval := cost.NewScheduler(
		tracker, costs, time.Duration(cfg.Budget.EvalInterval)*time.Minute, log,
	)
	budgetEval.Start(ctx)
	defer budgetEval.Stop()

	zapLog.Info("Schedulers started",
		zap.Int("handoffIntervalMin", cfg.Schedulers.HandoffInterval),
		zap.Int("cleanupIntervalMin", cfg.Schedulers.CleanupInterval),
	)

	// --- API, health and metrics server ---
	api := newAPIServer(orch, arbiter, tracker, alerts, router, lifecycle, cleanup, budgetEval, log)
	httpServer := &http.Server{
		Addr:    cfg.App.MetricsAddress,
		Handler: api.routes(),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.App.MetricsAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped gracefully")
}
