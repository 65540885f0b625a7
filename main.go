package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice-svc/cache"
	"backoffice-svc/config"
	"backoffice-svc/database"
	"backoffice-svc/handlers"
	"backoffice-svc/kafka"
	"backoffice-svc/middleware"
	"backoffice-svc/reconciler"
	"backoffice-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize Kafka consumer
	consumer, err := kafka.InitConsumer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("backoffice-service")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Wire the reconciliation engine
	pgStore := store.NewPostgresStore(db, logger)
	dedup := store.NewRedisDedup(redisClient, 72*time.Hour, logger)
	publisher := kafka.NewPublisher(producer, cfg.EventsTopic, logger)
	engine := reconciler.NewEngine(pgStore, dedup, publisher, logger)

	// Start Kafka consumer in background
	go func() {
		if err := kafka.StartConsumer(consumer, cfg.WebhookTopic, engine, logger); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("backoffice-service"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	// Provider webhook endpoint
	webhookHandler := handlers.NewWebhookHandler(engine, logger)
	router.POST("/webhooks/stripe", webhookHandler.HandleStripeEvent)

	// Admin delivery method CRUD
	deliveryHandler := handlers.NewDeliveryHandler(db, redisClient, logger)
	admin := router.Group("/admin")
	{
		admin.GET("/deliveries", deliveryHandler.GetDeliveries)
		admin.GET("/deliveries/:id", deliveryHandler.GetDelivery)
		admin.POST("/deliveries", deliveryHandler.CreateDelivery)
		admin.PUT("/deliveries/:id", deliveryHandler.UpdateDelivery)
		admin.DELETE("/deliveries/:id", deliveryHandler.DeleteDelivery)
	}

	// Start REST server
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Back-office Service started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
