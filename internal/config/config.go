package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Notifier ServerConfig   `mapstructure:"notifier"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Leader   LeaderConfig   `mapstructure:"leader"`
	Instance InstanceConfig `mapstructure:"instance"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Events   EventsConfig   `mapstructure:"events"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auction  AuctionConfig  `mapstructure:"auction"`
	Log      LogConfig      `mapstructure:"log"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type LeaderConfig struct {
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	EventsRedis = "redis"
	EventsKafka = "kafka"

	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type EventsConfig struct {
	Driver  string      `mapstructure:"driver"`
	Channel string      `mapstructure:"channel"`
	Kafka   KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

type AuctionConfig struct {
	SweepSchedule string `mapstructure:"sweep_schedule"`
	MaxBidRetries int    `mapstructure:"max_bid_retries"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("notifier.port", 8081)
	v.SetDefault("notifier.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("leader.key", "auction_sweep_leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("storage.driver", StorageMySQL)
	v.SetDefault("events.driver", EventsRedis)
	v.SetDefault("events.channel", "auction_events")
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "auction-events")
	v.SetDefault("cache.driver", CacheRedis)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.prefix", "storefront:")
	v.SetDefault("auction.sweep_schedule", "@every 1m")
	v.SetDefault("auction.max_bid_retries", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":             "SERVER_PORT",
		"server.host":             "SERVER_HOST",
		"notifier.port":           "NOTIFIER_PORT",
		"notifier.host":           "NOTIFIER_HOST",
		"redis.address":           "REDIS_ADDRESS",
		"redis.password":          "REDIS_PASSWORD",
		"redis.db":                "REDIS_DB",
		"mysql.dsn":               "MYSQL_DSN",
		"mysql.max_open_conns":    "MYSQL_MAX_OPEN_CONNS",
		"mysql.max_idle_conns":    "MYSQL_MAX_IDLE_CONNS",
		"mysql.conn_max_lifetime": "MYSQL_CONN_MAX_LIFETIME",
		"mysql.migrate":           "MYSQL_MIGRATE",
		"leader.key":              "LEADER_KEY",
		"leader.ttl":              "LEADER_TTL",
		"instance.id":             "INSTANCE_ID",
		"storage.driver":          "STORAGE_DRIVER",
		"events.driver":           "EVENTS_DRIVER",
		"events.channel":          "EVENTS_CHANNEL",
		"events.kafka.brokers":    "KAFKA_BROKERS",
		"events.kafka.topic":      "KAFKA_TOPIC",
		"cache.driver":            "CACHE_DRIVER",
		"cache.ttl":               "CACHE_TTL",
		"cache.prefix":            "CACHE_PREFIX",
		"auction.sweep_schedule":  "AUCTION_SWEEP_SCHEDULE",
		"auction.max_bid_retries": "AUCTION_MAX_BID_RETRIES",
		"log.level":               "LOG_LEVEL",
		"cors.allowed_origins":    "CORS_ALLOWED_ORIGINS",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// Load reads configuration from defaults, an optional .env file, an optional
// config.yaml on the search path and the environment, in increasing priority.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-storefront/")

	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case EventsRedis, EventsKafka:
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	switch c.Cache.Driver {
	case CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Auction.MaxBidRetries < 1 {
		return fmt.Errorf("auction.max_bid_retries must be at least 1, got %d", c.Auction.MaxBidRetries)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s, Redis: %s, Storage: %s, Events: %s, Instance: %s",
		c.Server.Address(),
		c.Redis.Address,
		c.Storage.Driver,
		c.Events.Driver,
		c.Instance.ID,
	)
}
