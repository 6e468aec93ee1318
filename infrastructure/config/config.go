package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"fedbox/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `validate:"required"`
	Environment   string `validate:"oneof=development staging production"`

	// Graph store backend
	StoreBackend  string `validate:"oneof=memory dynamodb"`
	AWSRegion     string
	DynamoDBTable string
	LocksTable    string

	// Event publishing
	EventBusName      string
	EnableEventBridge bool

	// Federation
	UserAgent       string
	HTTPTimeout     time.Duration `validate:"min=1s"`
	ProcessInterval time.Duration `validate:"min=100ms"`
	InboxRateLimit  int           `validate:"min=1"`
	OutboxRateLimit int           `validate:"min=1"`

	// Authentication
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// Logging and features
	LogLevel   string
	EnableCORS bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("DYNAMODB_TABLE", "fedbox-graph"),
		LocksTable:    getEnv("LOCKS_TABLE", "fedbox-locks"),

		EventBusName:      getEnv("EVENT_BUS_NAME", "fedbox-events"),
		EnableEventBridge: getEnvBool("ENABLE_EVENTBRIDGE", false),

		UserAgent:       getEnv("USER_AGENT", "fedbox/1.0"),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		ProcessInterval: getEnvDuration("PROCESS_INTERVAL", 2*time.Second),
		InboxRateLimit:  getEnvInt("INBOX_RATE_LIMIT", 120),
		OutboxRateLimit: getEnvInt("OUTBOX_RATE_LIMIT", 60),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "fedbox"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		EnableCORS: getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}
	if c.StoreBackend == "dynamodb" && c.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
	}
	if c.EnableEventBridge && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when EventBridge is enabled")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
