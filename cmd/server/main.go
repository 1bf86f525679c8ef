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

	"inventory-service/config"
	"inventory-service/internal/api"
	"inventory-service/internal/broker"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/webhook"
	"inventory-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory service")

	tp, err := util.InitTracer("inventory-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSideEffects)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	sideEffects := broker.NewSideEffectPublisher(producer)

	stockService := service.NewStockService(db, redisClient)
	coordinator := service.NewReservationCoordinator(redisClient, db)
	checkoutService := service.NewCheckoutService(db, coordinator)

	volatileRollback := service.NewVolatileRollbackStrategy(redisClient)
	durableRollback := service.NewDurableRollbackStrategy(db)
	rollbackOrchestrator := service.NewRollbackOrchestrator(volatileRollback, durableRollback)

	eventCache := webhook.NewEventCache(cfg.Stock.EventCacheCapacity)
	paymentHandlers := webhook.NewPaymentHandlers(db, coordinator, rollbackOrchestrator, sideEffects)
	webhookRouter := webhook.NewRouter(eventCache, paymentHandlers)

	ctx := context.Background()
	if err := stockService.SyncStockToVolatile(ctx); err != nil {
		log.Printf("Failed to sync stock levels to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sideEffectConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSideEffects, cfg.Kafka.ConsumerGroup)
	sideEffectWorker := worker.NewSideEffectWorker(
		sideEffectConsumer,
		worker.NewHTTPNotificationSender(cfg.Effects.NotificationURL),
		worker.NewHTTPInvoiceClient(cfg.Effects.InvoiceURL),
	)
	go func() {
		if err := sideEffectWorker.Start(workerCtx); err != nil {
			log.Printf("Side-effect worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, stockService, webhookRouter)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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
	sideEffectWorker.Stop()

	log.Println("Server exited")
}
