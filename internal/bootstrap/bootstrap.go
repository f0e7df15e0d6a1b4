/**
 * @description
 * Shared wiring for the credit-service binaries. Both the HTTP server and the
 * paymentsctl operator tool build the database pool, the M-Pesa client and the
 * application service the same way.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/redis/go-redis/v9: Rate limiter backend.
 * - pkg/mpesa, pkg/rabbitmq: Gateway and broker clients.
 */

package bootstrap

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/config"
	"github.com/predictpro/credit-service/pkg/mpesa"
	"github.com/predictpro/credit-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PoolSize bounds the database pool. The operator tool needs far fewer connections
// than the server.
type PoolSize struct {
	MaxConns int32
	MinConns int32
}

var (
	ServerPool = PoolSize{MaxConns: 100, MinConns: 20}
	ToolPool   = PoolSize{MaxConns: 4, MinConns: 0}
)

// OpenDatabase connects a pgx pool and verifies it with a ping.
func OpenDatabase(ctx context.Context, databaseURL string, size PoolSize) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = size.MaxConns
	poolConfig.MinConns = size.MinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to stay compatible with pgbouncer.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// OpenRedis returns a connected client, or nil when Redis is not configured or
// unreachable. Callers treat nil as "rate limiting disabled".
func OpenRedis(ctx context.Context, redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

// OpenPublisher returns the RabbitMQ producer, or the logging fallback when the broker
// is not reachable.
func OpenPublisher(cfg config.Config) rabbitmq.Publisher {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; using fallback producer\" env=RABBITMQ_URL")
		return &rabbitmq.EventProducerFallback{}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.PaymentEventsExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		return &rabbitmq.EventProducerFallback{}
	}
	log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	return producer
}

// NewGateway builds the Daraja client with its shared token manager.
func NewGateway(cfg config.Config) *mpesa.Client {
	httpClient := mpesa.NewHTTPClient(time.Duration(cfg.MpesaTimeoutSeconds) * time.Second)
	tokens := mpesa.NewTokenManager(httpClient, cfg.MpesaBaseURL, cfg.MpesaConsumerKey, cfg.MpesaConsumerSecret)
	return mpesa.NewClient(httpClient, cfg.MpesaBaseURL, cfg.MpesaShortcode, cfg.MpesaPasskey, tokens)
}

// ServiceConfig maps the loaded configuration onto the service tunables.
func ServiceConfig(cfg config.Config) app.ServiceConfig {
	return app.ServiceConfig{
		CallbackURL:                   cfg.MpesaCallbackURL,
		CallbackToken:                 cfg.MpesaCallbackToken,
		ExchangeRate:                  decimal.NewFromFloat(cfg.USDKESRate),
		AccessCost:                    decimal.NewFromFloat(cfg.PredictionAccessCost),
		FreePredictionsLimit:          cfg.FreePredictionsLimit,
		PendingPaymentTTL:             time.Duration(cfg.PendingPaymentTTLMinutes) * time.Minute,
		InitiateRateLimitPerMinute:    cfg.InitiateRateLimitPerMinute,
		StatusQueryRateLimitPerMinute: cfg.StatusQueryRateLimitPerMinute,
		BusinessName:                  cfg.BusinessName,
		BusinessPhone:                 cfg.BusinessPhone,
		Shortcode:                     cfg.MpesaShortcode,
	}
}

// ValidateGateway reports the M-Pesa settings that are missing.
func ValidateGateway(cfg config.Config) []string {
	var missing []string
	for env, value := range map[string]string{
		"MPESA_CONSUMER_KEY":    cfg.MpesaConsumerKey,
		"MPESA_CONSUMER_SECRET": cfg.MpesaConsumerSecret,
		"MPESA_SHORTCODE":       cfg.MpesaShortcode,
		"MPESA_PASSKEY":         cfg.MpesaPasskey,
		"MPESA_CALLBACK_URL":    cfg.MpesaCallbackURL,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	sort.Strings(missing)
	return missing
}
