package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8081", cfg.Notifier.Address())
	assert.Equal(t, StorageMySQL, cfg.Storage.Driver)
	assert.Equal(t, EventsRedis, cfg.Events.Driver)
	assert.Equal(t, "auction_events", cfg.Events.Channel)
	assert.Equal(t, "@every 1m", cfg.Auction.SweepSchedule)
	assert.Equal(t, 5, cfg.Auction.MaxBidRetries)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Leader.TTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("EVENTS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("AUCTION_MAX_BID_RETRIES", "9")
	t.Setenv("CACHE_TTL", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, EventsKafka, cfg.Events.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, 9, cfg.Auction.MaxBidRetries)
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 7000
auction:
  sweep_schedule: "@every 30s"
  max_bid_retries: 3
instance:
  id: sweeper-7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "@every 30s", cfg.Auction.SweepSchedule)
	assert.Equal(t, 3, cfg.Auction.MaxBidRetries)
	assert.Equal(t, "sweeper-7", cfg.Instance.ID)
	// untouched sections keep their defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true},
		{name: "unknown events", mutate: func(c *Config) { c.Events.Driver = "nats" }, wantErr: true},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Driver = "memcached" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Auction.MaxBidRetries = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Storage: StorageConfig{Driver: StorageMemory},
				Events:  EventsConfig{Driver: EventsRedis},
				Cache:   CacheConfig{Driver: CacheMemory},
				Auction: AuctionConfig{MaxBidRetries: 1},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
