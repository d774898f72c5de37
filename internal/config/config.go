package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Seat hold and booking lifecycle
	Booking BookingConfig

	// Fare and commission rates
	Fare FareConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Rate limiting configuration (seat lock endpoint)
	RateLimit RateLimitConfig

	// Background jobs
	Cron CronConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // pgx, postgres, memory
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig controls seat holds and pending bookings
type BookingConfig struct {
	LockDuration       time.Duration // how long a seat hold lasts
	MaxSeatsPerBooking int
	PendingTTL         time.Duration // PENDING bookings older than this are swept to EXPIRED
	GatewayTimeout     time.Duration // bound on each payment gateway call
	TripHorizonDays    int           // trips materialized ahead of today
	Timezone           string        // zone schedule departure times are expressed in
}

// FareConfig holds pricing constants
type FareConfig struct {
	GSTPercent               decimal.Decimal
	ConvenienceFee           decimal.Decimal
	GSTOnCommissionPercent   decimal.Decimal
	DefaultCommissionPercent decimal.Decimal
}

// PaymentConfig selects and configures the payment gateway
type PaymentConfig struct {
	Provider        string // "mock" or "stripe"
	StripeSecretKey string
	Currency        string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// CronConfig toggles background jobs
type CronConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "pgx"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			LockDuration:       getEnvAsDuration("BOOKING_LOCK_DURATION", 5*time.Minute),
			MaxSeatsPerBooking: getEnvAsInt("BOOKING_MAX_SEATS", 6),
			PendingTTL:         getEnvAsDuration("BOOKING_PENDING_TTL", 15*time.Minute),
			GatewayTimeout:     getEnvAsDuration("BOOKING_GATEWAY_TIMEOUT", 20*time.Second),
			TripHorizonDays:    getEnvAsInt("BOOKING_TRIP_HORIZON_DAYS", 30),
			Timezone:           getEnv("APP_TIMEZONE", "Asia/Kolkata"),
		},
		Fare: FareConfig{
			GSTPercent:               getEnvAsDecimal("FARE_GST_PERCENT", decimal.NewFromInt(5)),
			ConvenienceFee:           getEnvAsDecimal("FARE_CONVENIENCE_FEE", decimal.NewFromInt(30)),
			GSTOnCommissionPercent:   getEnvAsDecimal("FARE_GST_ON_COMMISSION_PERCENT", decimal.NewFromInt(18)),
			DefaultCommissionPercent: getEnvAsDecimal("FARE_DEFAULT_COMMISSION_PERCENT", decimal.NewFromInt(10)),
		},
		Payment: PaymentConfig{
			Provider:        getEnv("PAYMENT_PROVIDER", "mock"),
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:        getEnv("PAYMENT_CURRENCY", "inr"),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Cron: CronConfig{
			Enabled: getEnvAsBool("CRON_ENABLED", true),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "pgx", "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.Server.Environment == "production" {
			return fmt.Errorf("DATABASE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'pgx', 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.LockDuration <= 0 {
		return fmt.Errorf("BOOKING_LOCK_DURATION must be positive")
	}

	if c.Booking.MaxSeatsPerBooking < 1 {
		return fmt.Errorf("BOOKING_MAX_SEATS must be at least 1")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	switch c.Payment.Provider {
	case "mock":
		if c.Server.Environment == "production" {
			return fmt.Errorf("PAYMENT_PROVIDER=mock is not allowed in production")
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe provider")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_PROVIDER: %s (must be 'mock' or 'stripe')", c.Payment.Provider)
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("5m", "20s")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil || value.IsNegative() {
		log.Printf("Invalid decimal value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
