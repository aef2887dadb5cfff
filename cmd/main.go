/**
 * @description
 * This is the main entry point for the reconciliation-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the Airwallex API client, the message broker producer,
 * repositories, the core application service, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Local .env loading for development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/airwallex: Client for the Airwallex platform API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/procura/reconciliation-service/internal/api"
	"github.com/procura/reconciliation-service/internal/app"
	"github.com/procura/reconciliation-service/internal/config"
	"github.com/procura/reconciliation-service/internal/store"
	"github.com/procura/reconciliation-service/pkg/airwallex"
	"github.com/procura/reconciliation-service/pkg/rabbitmq"
)

func main() {
	// Load the optional local .env file before anything reads the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment values\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AirwallexClientID) == "" || strings.TrimSpace(cfg.AirwallexAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"airwallex credentials must be configured\" env=AIRWALLEX_CLIENT_ID,AIRWALLEX_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting reconciliation-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Sync runs are bursty: many small reads and writes while a run is
	// active, idle otherwise.
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish sync-completed events.
	// This service only publishes, so a consumer is never started.
	var eventProducer rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Airwallex platform API.
	airwallexClient := airwallex.NewClient(cfg.AirwallexAPIBaseURL, cfg.AirwallexClientID, cfg.AirwallexAPIKey)
	airwallexClient.ConfigurePagination(cfg.SyncPageSize)
	airwallexClient.ConfigureTokenExpiryMargin(time.Duration(cfg.TokenRefreshMarginSeconds) * time.Second)

	// Redis backs the per-category run lock and the resync rate limiter.
	// Missing Redis degrades to unguarded runs rather than preventing boot.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; run locking and resync rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; run locking and resync rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; run locking and resync rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	reconciliationService := app.NewService(repository, airwallexClient, eventProducer)
	reconciliationService.ConfigureRunLockTTL(time.Duration(cfg.RunLockTTLMinutes) * time.Minute)
	reconciliationService.ConfigureResyncRateLimit(cfg.ResyncRateLimitPerMinute)
	if redisClient != nil {
		reconciliationService.SetSyncGuard(app.NewRedisSyncGuard(redisClient, cfg.RedisKeyPrefix))
	}

	// Initialize the API handlers.
	reconciliationHandlers := api.NewReconciliationHandlers(reconciliationService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/reconciliation", api.ReconciliationRoutes(reconciliationHandlers, cfg.AdminJWKSURL, cfg.InternalAPIKey))

	// Start the HTTP server, bound to all interfaces.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
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

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
