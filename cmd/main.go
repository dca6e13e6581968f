package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/whoami847/topup-payments/internal/api"
	"github.com/whoami847/topup-payments/internal/config"
	"github.com/whoami847/topup-payments/internal/gateway"
	"github.com/whoami847/topup-payments/internal/handlers"
	"github.com/whoami847/topup-payments/internal/repository"
	"github.com/whoami847/topup-payments/internal/service"
	"github.com/whoami847/topup-payments/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("topup-payments"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Topup Payments service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitDB(db); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	orders := repository.NewOrderRepository(db)
	gateways := repository.NewGatewayRepository(db)
	users := repository.NewUserRepository(db)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "order.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Provider adapters
	registry := gateway.NewRegistry(
		gateway.NewSSLCommerz(cfg.ProviderTimeout),
		gateway.NewAamarPay(cfg.ProviderTimeout),
	)

	// Services
	initiator := service.NewInitiator(orders, gateways, users, registry,
		cfg.PublicBaseURL, cfg.ProviderTimeout)
	settlement := service.NewSettlement(orders, gateways, registry,
		service.NewRedisLocker(redisClient),
		service.NewKafkaPublisher(kafkaWriter),
		service.NewNATSFulfiller(nc),
	)

	// Handlers and router
	paymentHandler := handlers.NewPaymentHandler(initiator, settlement, cfg.FrontendBaseURL)
	orderHandler := handlers.NewOrderHandler(orders, users)
	r := api.NewRouter(paymentHandler, orderHandler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Topup Payments service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
