package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 2*time.Second, cfg.ProcessInterval)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("STORE_BACKEND", "dynamodb")
	t.Setenv("DYNAMODB_TABLE", "graph-test")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("INBOX_RATE_LIMIT", "30")
	t.Setenv("ENABLE_CORS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, "dynamodb", cfg.StoreBackend)
	assert.Equal(t, "graph-test", cfg.DynamoDBTable)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30, cfg.InboxRateLimit)
	assert.False(t, cfg.EnableCORS)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storebackend")
}

func TestLoadConfigRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "testing")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestMalformedNumericEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("INBOX_RATE_LIMIT", "lots")
	t.Setenv("HTTP_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.InboxRateLimit)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
