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

	"marketplace-service/config"
	"marketplace-service/internal/api"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/paystack"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"
	"marketplace-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace service")

	tp, err := util.InitTracer("marketplace-service", cfg.Observ.JaegerEndpoint)
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

	if err := syncStockToRedis(context.Background(), db, redisClient); err != nil {
		log.Printf("Failed to sync stock to Redis: %v", err)
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ledger := service.NewInventoryLedger(db, redisClient)
	settlementWindow := time.Duration(cfg.Business.SettlementWindowHours) * time.Hour
	orderService := service.NewOrderService(db, db, db, db, ledger, eventPublisher, settlementWindow)

	gateway := paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey)
	paymentService := service.NewPaymentService(db, db, db, gateway, orderService, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	callbackConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	callbackWorker := worker.NewPaymentCallbackWorker(callbackConsumer, paymentService)
	go func() {
		if err := callbackWorker.Start(workerCtx); err != nil {
			log.Printf("Payment callback worker error: %v", err)
		}
	}()

	sweepInterval := time.Duration(cfg.Business.ExpirySweepSeconds) * time.Second
	expiryWorker := worker.NewExpiryWorker(orderService, sweepInterval, 100)
	go func() {
		if err := expiryWorker.Start(workerCtx); err != nil {
			log.Printf("Expiry worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, paymentService)
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
	callbackWorker.Stop()
	expiryWorker.Stop()

	log.Println("Server exited")
}

// syncStockToRedis seeds Redis stock counters from the store so the fast
// path starts from the authoritative quantities.
func syncStockToRedis(ctx context.Context, db *store.Store, redisClient *redisclient.Client) error {
	items, err := db.ListItems(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := redisClient.InitStock(ctx, item.ID, item.Quantity); err != nil {
			return err
		}
	}
	log.Printf("Synced %d items to Redis", len(items))
	return nil
}
