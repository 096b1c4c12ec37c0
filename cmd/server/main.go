package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tour-payments/config"
	"tour-payments/internal/api"
	"tour-payments/internal/app"
	"tour-payments/internal/broker"
	"tour-payments/internal/redisclient"
	"tour-payments/internal/service"
	"tour-payments/internal/store"
	"tour-payments/internal/util"
	"tour-payments/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting tour payments service",
		zap.String("env", cfg.Server.Env),
		zap.String("gateway_mode", cfg.Gateway.Mode))
	if cfg.Gateway.AccessToken != "" {
		log.Printf("Access token configured (%d characters)", len(cfg.Gateway.AccessToken))
	}

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.TracerOptions{
			JaegerEndpoint: cfg.Observ.JaegerEndpoint,
			Environment:    cfg.Server.Env,
			SampleRatio:    cfg.Observ.TracingSampleRatio,
		})
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	nrApp := app.NewNewRelic(cfg.NewRelic)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	orderStore, err := app.NewOrderStore(startupCtx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("Failed to open order store: %v", err)
	}
	defer orderStore.Close()
	log.Printf("Order store ready: backend=%s", cfg.Database.Backend)

	gw := app.NewGateway(cfg.Gateway, nrApp)

	// Order locks and the webhook dedup window are shared across instances
	// through Redis when it is enabled, otherwise they are process-local.
	var (
		locks service.Locker
		dedup service.DedupWindow
	)
	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		redisClient.Instrument(nrApp)
		locks = redisclient.NewLocker(redisClient, cfg.Redis.LockTTL)
		dedup = redisclient.NewDedupWindow(redisClient, cfg.Webhook.DedupTTL)
		log.Println("Redis connected")
	} else {
		locks = store.NewKeyedMutex()
		dedup = service.NewMemoryDedup(cfg.Webhook.DedupCapacity, cfg.Webhook.DedupTTL)
	}

	var (
		events   service.EventPublisher
		notifier service.FulfillmentNotifier
		queue    service.ReconciliationQueue
		consumer *worker.ReconciliationWorker
	)
	queueMode := "inline"

	validator := service.NewOrderValidator(service.ValidatorConfig{
		Currency:      cfg.Checkout.Currency,
		PhoneAreaCode: cfg.Checkout.PhoneAreaCode,
	})
	builder := service.NewIntentBuilder(service.BuilderConfig{
		Currency:        cfg.Checkout.Currency,
		PackageLabel:    cfg.Checkout.PackageLabel,
		RedirectBaseURL: cfg.Checkout.RedirectBaseURL,
		NotificationURL: cfg.Checkout.NotificationURL,
		MaxInstallments: cfg.Checkout.MaxInstallments,
	})

	if cfg.Kafka.Enabled {
		orderEvents := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer orderEvents.Close()
		notifications := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notifications.Close()
		log.Println("Kafka producers initialized")

		publisher := broker.NewEventPublisher(orderEvents, notifications)
		events, notifier, queue = publisher, publisher, publisher
		queueMode = "kafka"
	}

	engine := service.NewEngine(orderStore.Orders, gw.Client, locks, notifier, events)
	engine.ResolveByReference(cfg.Gateway.ResolveByReference)

	if queue == nil {
		queue = worker.NewInlineDispatcher(engine)
	} else {
		reader := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		consumer = worker.NewReconciliationWorker(reader, engine)
	}

	checkout := service.NewCheckoutService(validator, builder, gw.Client, orderStore.Orders, locks, events, gw.CreateTimeout)
	ingress := service.NewWebhookIngress(dedup, queue, cfg.Webhook.DedupBucket)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if consumer != nil {
		go func() {
			if err := consumer.Start(workerCtx); err != nil {
				log.Printf("Reconciliation worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := api.NewHandler(checkout, ingress, api.StatusInfo{
		Port:              cfg.Server.Port,
		Env:               cfg.Server.Env,
		GatewayMode:       cfg.Gateway.Mode,
		AccessTokenLength: len(cfg.Gateway.AccessToken),
		StoreBackend:      cfg.Database.Backend,
		QueueMode:         queueMode,
	})
	handler.AddReadinessCheck("store", orderStore.Ping)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", redisClient.Ping)
	}

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		NewRelicApp:    nrApp,
		AccessLog:      true,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Printf("Error stopping reconciliation worker: %v", err)
		}
	}

	log.Println("Server exited")
}
