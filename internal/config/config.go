/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
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

// Config holds all the configuration variables for the reconciliation-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix            string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	AirwallexAPIBaseURL       string `mapstructure:"AIRWALLEX_API_BASE_URL"`
	AirwallexClientID         string `mapstructure:"AIRWALLEX_CLIENT_ID"`
	AirwallexAPIKey           string `mapstructure:"AIRWALLEX_API_KEY"`
	AdminJWKSURL              string `mapstructure:"ADMIN_JWKS_URL"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	SyncPageSize              int    `mapstructure:"SYNC_PAGE_SIZE"`
	TokenRefreshMarginSeconds int    `mapstructure:"TOKEN_REFRESH_MARGIN_SECONDS"`
	ResyncRateLimitPerMinute  int    `mapstructure:"RESYNC_RATE_LIMIT_PER_MINUTE"`
	RunLockTTLMinutes         int    `mapstructure:"RUN_LOCK_TTL_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AIRWALLEX_API_BASE_URL", "https://api.airwallex.com")
	viper.SetDefault("REDIS_KEY_PREFIX", "procura:reconciliation")
	viper.SetDefault("SYNC_PAGE_SIZE", 100)
	viper.SetDefault("TOKEN_REFRESH_MARGIN_SECONDS", 60)
	viper.SetDefault("RESYNC_RATE_LIMIT_PER_MINUTE", 6)
	viper.SetDefault("RUN_LOCK_TTL_MINUTES", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AIRWALLEX_API_BASE_URL")
	_ = viper.BindEnv("AIRWALLEX_CLIENT_ID")
	_ = viper.BindEnv("AIRWALLEX_API_KEY")
	_ = viper.BindEnv("ADMIN_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "RECONCILIATION_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("SYNC_PAGE_SIZE")
	_ = viper.BindEnv("TOKEN_REFRESH_MARGIN_SECONDS")
	_ = viper.BindEnv("RESYNC_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RUN_LOCK_TTL_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("RECONCILIATION_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "procura:reconciliation"
	}

	if config.SyncPageSize < 1 || config.SyncPageSize > 1000 {
		log.Printf("level=warn component=config msg=\"sync page size out of range; using default\" page_size=%d", config.SyncPageSize)
		config.SyncPageSize = 100
	}
	if config.TokenRefreshMarginSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative token refresh margin; coercing to zero\" margin_seconds=%d", config.TokenRefreshMarginSeconds)
		config.TokenRefreshMarginSeconds = 0
	}
	// Zero is a valid value: it disables resync rate limiting entirely.
	if config.ResyncRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative resync rate limit; using default\" limit=%d", config.ResyncRateLimitPerMinute)
		config.ResyncRateLimitPerMinute = 6
	}
	if config.RunLockTTLMinutes <= 0 {
		config.RunLockTTLMinutes = 15
	}

	return
}
