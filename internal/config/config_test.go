package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.Cart.StalenessWindow)
	assert.Equal(t, 15.0, cfg.Pricing.BaseShipping)
	assert.Equal(t, 250.0, cfg.Pricing.FreeShippingThreshold)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Greater(t, cfg.Storage.Redis.TTL, cfg.Cart.StalenessWindow)
	assert.Equal(t, 30*time.Minute, cfg.Cart.IdleTimeout)
	assert.Equal(t, uint64(100), cfg.Storage.Mongo.MaxPoolSize)
}

func TestLoad_FileThenEnvThenFlag(t *testing.T) {
	path := writeFile(t, `
http_port: "9000"
log_level: debug
storage:
  backend: redis
  redis:
    addr: redis:6379
    ttl: 240h
pricing:
  base_shipping: 9.5
cart:
  staleness_window: 72h
kafka:
  brokers: [k1:9092]
`)
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load([]string{"--config", path, "--port", "7000"})

	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, 240*time.Hour, cfg.Storage.Redis.TTL)
	assert.Equal(t, 9.5, cfg.Pricing.BaseShipping)
	assert.Equal(t, 250.0, cfg.Pricing.FreeShippingThreshold, "unset keys keep defaults")
	assert.Equal(t, 72*time.Hour, cfg.Cart.StalenessWindow)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeFile(t, "coupons:\n  source: mongo\n"))

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Coupons.Source)
}

func TestLoad_NoRedisExpiry(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_TTL", "0s")

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Zero(t, cfg.Storage.Redis.TTL)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
		assert.Error(t, err)
	})
	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load([]string{"--config", writeFile(t, "storage: [")})
		assert.Error(t, err)
	})
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "etcd")
		_, err := Load(nil)
		assert.ErrorContains(t, err, "etcd")
	})
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("CART_STALENESS_WINDOW", "soon")
		_, err := Load(nil)
		assert.ErrorContains(t, err, "CART_STALENESS_WINDOW")
	})
	t.Run("redis ttl within staleness window", func(t *testing.T) {
		t.Setenv("REDIS_TTL", "168h")
		_, err := Load(nil)
		assert.ErrorContains(t, err, "staleness window")
	})
	t.Run("mongo pool sizes", func(t *testing.T) {
		_, err := Load([]string{"--config", writeFile(t, "storage:\n  mongo:\n    max_pool_size: 2\n    min_pool_size: 5\n")})
		assert.ErrorContains(t, err, "pool size")
	})
	t.Run("unknown flag", func(t *testing.T) {
		_, err := Load([]string{"--verbose"})
		assert.Error(t, err)
	})
}
