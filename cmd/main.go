/**
 * @description
 * This is the main entry point for the credit-service. It initializes configuration,
 * the database pool, the M-Pesa gateway client, the RabbitMQ producer, the Redis rate
 * limiter, the core application service, the pending-payment sweep scheduler and the
 * HTTP server, then waits for a shutdown signal.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/joho/godotenv: Loads a local .env file during development.
 * - internal/api, internal/app, internal/bootstrap, internal/config, internal/store.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/predictpro/credit-service/internal/api"
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/bootstrap"
	"github.com/predictpro/credit-service/internal/config"
	"github.com/predictpro/credit-service/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using process environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if missing := bootstrap.ValidateGateway(cfg); len(missing) > 0 {
		log.Printf("level=warn component=bootstrap msg=\"mpesa settings incomplete; payments will fail\" missing=%s", strings.Join(missing, ","))
	}

	log.Printf("level=info component=bootstrap msg=\"starting credit-service\" port=%s mpesa_env=%s", cfg.ServerPort, cfg.MpesaEnvironment)

	dbpool, err := bootstrap.OpenDatabase(context.Background(), cfg.DatabaseURL, bootstrap.ServerPool)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	repository := store.NewPostgresRepository(dbpool)

	producer := bootstrap.OpenPublisher(cfg)
	defer producer.Close()

	gateway := bootstrap.NewGateway(cfg)

	creditService := app.NewService(repository, gateway, producer, bootstrap.ServiceConfig(cfg))
	if redisClient := bootstrap.OpenRedis(context.Background(), cfg.RedisURL); redisClient != nil {
		defer redisClient.Close()
		creditService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(app.NewJobs(creditService, logger, 2*time.Minute), logger, cfg.PendingSweepSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"sweep scheduler start failed\" schedule=%q err=%v", cfg.PendingSweepSchedule, err)
	}

	handlers := api.NewHandlers(creditService)

	router := chi.NewRouter()
	router.Mount("/", api.CreditRoutes(handlers, cfg.JWTSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		log.Println("level=warn component=bootstrap msg=\"sweep still running at shutdown\"")
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
