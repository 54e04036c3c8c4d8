package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/deliciasfueguinas/orderbot/internal/api/router"
	appconfig "github.com/deliciasfueguinas/orderbot/internal/config"
	"github.com/deliciasfueguinas/orderbot/internal/conversation"
	"github.com/deliciasfueguinas/orderbot/internal/http/handlers"
	"github.com/deliciasfueguinas/orderbot/internal/inventory"
	"github.com/deliciasfueguinas/orderbot/internal/llm"
	"github.com/deliciasfueguinas/orderbot/internal/notify"
	"github.com/deliciasfueguinas/orderbot/internal/observability/metrics"
	"github.com/deliciasfueguinas/orderbot/internal/payments"
	"github.com/deliciasfueguinas/orderbot/internal/realtime"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting orderbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"state_backend", cfg.StateBackend,
	)

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize state store", "error", err)
		os.Exit(1)
	}

	botMetrics := metrics.NewBotMetrics(nil)

	checker := inventory.NewChecker(cfg.ProductsCSV, cfg.FlavorsCSV, logger.Named("inventory"))

	llmClient := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger.Named("llm"))
	classifier := llm.NewClassifier(llmClient, logger.Named("intent"))
	extractor := llm.NewExtractor(llmClient, logger.Named("extractor"))

	mpClient := payments.NewMercadoPagoClient(cfg.MPBaseURL, cfg.MPAccessToken, cfg.MPTimeout, logger.Named("mercadopago"))
	backURLs := &payments.BackURLs{
		Success: cfg.MPSuccessURL,
		Failure: cfg.MPFailureURL,
		Pending: cfg.MPPendingURL,
	}
	linkService := payments.NewLinkService(mpClient, backURLs, cfg.PaymentLinksDir, logger.Named("payments"))

	orderHandler := conversation.NewOrderHandler(checker, extractor, linkService, store, botMetrics, logger.Named("orders"))
	orchestrator := conversation.NewOrchestrator(store, classifier, orderHandler, llmClient, botMetrics, logger.Named("conversation"))

	waSender := notify.NewWhatsAppSender(cfg.WhatsAppBaseURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, logger.Named("whatsapp"))
	notifier := notify.NewNotifier(store, waSender, botMetrics, cfg.NotifyInterval, logger.Named("notify"))

	hub := realtime.NewHub(logger.Named("realtime"))
	webhookHandler := payments.NewWebhookHandler(mpClient, store, hub, botMetrics, cfg.WebhookArchiveDir, logger.Named("webhook"))
	whatsAppHandler := handlers.NewWhatsAppHandler(orchestrator, waSender, cfg.WhatsAppVerifyToken, logger.Named("inbound"))

	r := router.New(&router.Config{
		Logger:          logger,
		PaymentWebhook:  webhookHandler,
		WhatsAppHandler: whatsAppHandler,
		Hub:             hub,
		MetricsHandler:  promhttp.Handler(),
	})

	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	go notifier.Run(notifierCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopNotifier()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildStore(cfg *appconfig.Config, logger *logging.Logger) (state.Store, error) {
	if cfg.StateBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return state.NewRedisStore(rdb, logger.Named("state")), nil
	}
	return state.NewFileStore(cfg.DataDir, logger.Named("state"))
}
