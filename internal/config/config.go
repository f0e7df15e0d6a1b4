/**
 * @description
 * This package handles the configuration management for the credit service. It uses the
 * Viper library to read configuration from environment variables (and an optional .env
 * file), normalizing the M-Pesa gateway, ledger pricing and sweep settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	MpesaEnvironmentSandbox    = "sandbox"
	MpesaEnvironmentProduction = "production"

	mpesaSandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionBaseURL = "https://api.safaricom.co.ke"
)

// Config holds all the configuration variables for the credit service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix  string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	PaymentEventsExchange string `mapstructure:"PAYMENT_EVENTS_EXCHANGE"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`

	MpesaEnvironment    string `mapstructure:"MPESA_ENVIRONMENT"`
	MpesaBaseURL        string `mapstructure:"MPESA_BASE_URL"`
	MpesaConsumerKey    string `mapstructure:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string `mapstructure:"MPESA_CONSUMER_SECRET"`
	MpesaShortcode      string `mapstructure:"MPESA_SHORTCODE"`
	MpesaPasskey        string `mapstructure:"MPESA_PASSKEY"`
	MpesaCallbackURL    string `mapstructure:"MPESA_CALLBACK_URL"`
	MpesaCallbackToken  string `mapstructure:"MPESA_CALLBACK_TOKEN"`
	MpesaTimeoutSeconds int    `mapstructure:"MPESA_TIMEOUT_SECONDS"`

	USDKESRate           float64 `mapstructure:"USD_KES_RATE"`
	PredictionAccessCost float64 `mapstructure:"PREDICTION_ACCESS_COST"`
	FreePredictionsLimit int     `mapstructure:"FREE_PREDICTIONS_LIMIT"`

	PendingPaymentTTLMinutes      int    `mapstructure:"PENDING_PAYMENT_TTL_MINUTES"`
	PendingSweepSchedule          string `mapstructure:"PENDING_SWEEP_SCHEDULE"`
	InitiateRateLimitPerMinute    int    `mapstructure:"INITIATE_RATE_LIMIT_PER_MINUTE"`
	StatusQueryRateLimitPerMinute int    `mapstructure:"STATUS_QUERY_RATE_LIMIT_PER_MINUTE"`
	BusinessName                  string `mapstructure:"BUSINESS_NAME"`
	BusinessPhone                 string `mapstructure:"BUSINESS_PHONE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "predictpro:rate_limit")
	viper.SetDefault("PAYMENT_EVENTS_EXCHANGE", "payment_events")
	viper.SetDefault("MPESA_ENVIRONMENT", MpesaEnvironmentSandbox)
	viper.SetDefault("MPESA_TIMEOUT_SECONDS", 30)
	viper.SetDefault("USD_KES_RATE", 115)
	viper.SetDefault("PREDICTION_ACCESS_COST", 0.1)
	viper.SetDefault("FREE_PREDICTIONS_LIMIT", 4)
	viper.SetDefault("PENDING_PAYMENT_TTL_MINUTES", 30)
	viper.SetDefault("PENDING_SWEEP_SCHEDULE", "@every 5m")
	viper.SetDefault("INITIATE_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("STATUS_QUERY_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("BUSINESS_NAME", "PredictPro")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("MPESA_ENVIRONMENT")
	_ = viper.BindEnv("MPESA_BASE_URL")
	_ = viper.BindEnv("MPESA_CONSUMER_KEY")
	_ = viper.BindEnv("MPESA_CONSUMER_SECRET")
	_ = viper.BindEnv("MPESA_SHORTCODE", "MPESA_SHORTCODE", "MPESA_BUSINESS_SHORTCODE")
	_ = viper.BindEnv("MPESA_PASSKEY")
	_ = viper.BindEnv("MPESA_CALLBACK_URL")
	_ = viper.BindEnv("MPESA_CALLBACK_TOKEN")
	_ = viper.BindEnv("MPESA_TIMEOUT_SECONDS")
	_ = viper.BindEnv("USD_KES_RATE")
	_ = viper.BindEnv("PREDICTION_ACCESS_COST")
	_ = viper.BindEnv("FREE_PREDICTIONS_LIMIT")
	_ = viper.BindEnv("PENDING_PAYMENT_TTL_MINUTES")
	_ = viper.BindEnv("PENDING_SWEEP_SCHEDULE")
	_ = viper.BindEnv("INITIATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STATUS_QUERY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BUSINESS_NAME")
	_ = viper.BindEnv("BUSINESS_PHONE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "predictpro:rate_limit"
	}

	config.MpesaEnvironment = strings.ToLower(strings.TrimSpace(config.MpesaEnvironment))
	if config.MpesaEnvironment != MpesaEnvironmentProduction {
		if config.MpesaEnvironment != MpesaEnvironmentSandbox {
			log.Printf("level=warn component=config msg=\"unknown MPESA_ENVIRONMENT; falling back to sandbox\" value=%q", config.MpesaEnvironment)
		}
		config.MpesaEnvironment = MpesaEnvironmentSandbox
	}
	config.MpesaBaseURL = strings.TrimRight(strings.TrimSpace(config.MpesaBaseURL), "/")
	if config.MpesaBaseURL == "" {
		if config.MpesaEnvironment == MpesaEnvironmentProduction {
			config.MpesaBaseURL = mpesaProductionBaseURL
		} else {
			config.MpesaBaseURL = mpesaSandboxBaseURL
		}
	}
	config.MpesaShortcode = strings.TrimSpace(config.MpesaShortcode)
	config.MpesaCallbackURL = strings.TrimSpace(config.MpesaCallbackURL)
	config.MpesaCallbackToken = strings.TrimSpace(config.MpesaCallbackToken)
	if config.MpesaTimeoutSeconds <= 0 {
		config.MpesaTimeoutSeconds = 30
	}

	if config.USDKESRate <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive USD_KES_RATE configured; using default\" rate=%f", config.USDKESRate)
		config.USDKESRate = 115
	}
	if config.PredictionAccessCost <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive PREDICTION_ACCESS_COST configured; using default\" cost=%f", config.PredictionAccessCost)
		config.PredictionAccessCost = 0.1
	}
	if config.FreePredictionsLimit < 0 {
		log.Printf("level=warn component=config msg=\"negative FREE_PREDICTIONS_LIMIT configured; coercing to zero\" limit=%d", config.FreePredictionsLimit)
		config.FreePredictionsLimit = 0
	}

	if config.PendingPaymentTTLMinutes <= 0 {
		config.PendingPaymentTTLMinutes = 30
	}
	config.PendingSweepSchedule = strings.TrimSpace(config.PendingSweepSchedule)
	if config.PendingSweepSchedule == "" {
		config.PendingSweepSchedule = "@every 5m"
	}
	if config.InitiateRateLimitPerMinute <= 0 {
		config.InitiateRateLimitPerMinute = 10
	}
	if config.StatusQueryRateLimitPerMinute <= 0 {
		config.StatusQueryRateLimitPerMinute = 30
	}

	return
}
