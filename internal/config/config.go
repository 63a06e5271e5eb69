package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	DB     DBConfig
	Server ServerConfig
	Cache  CacheConfig
	Events EventsConfig
}

// Supported DB_DRIVER values
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Supported EVENT_SINK values
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkRedis = "redis"
)

// DBConfig holds record store configuration
type DBConfig struct {
	Driver     string `envconfig:"DB_DRIVER" default:"mysql"`
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"3306"`
	User       string `envconfig:"DB_USER" default:"root"`
	Password   string `envconfig:"DB_PASSWORD"`
	Database   string `envconfig:"DB_NAME" default:"forum_subscriptions"`
	MaxConns   int    `envconfig:"DB_MAX_CONNS" default:"10"`
	SQLitePath string `envconfig:"DB_SQLITE_PATH" default:"forum_subscriptions.db"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// CacheConfig controls the process-wide subscription cache
type CacheConfig struct {
	ResetEnabled  bool          `envconfig:"CACHE_RESET_ENABLED" default:"true"`
	ResetInterval time.Duration `envconfig:"CACHE_RESET_INTERVAL" default:"5m"`
}

// EventsConfig selects where subscription events are published
type EventsConfig struct {
	Sink         string   `envconfig:"EVENT_SINK" default:"log"`
	KafkaBrokers []string `envconfig:"EVENT_KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"EVENT_KAFKA_TOPIC" default:"forum.subscriptions"`
	RedisAddr    string   `envconfig:"EVENT_REDIS_ADDR" default:"localhost:6379"`
	RedisChannel string   `envconfig:"EVENT_REDIS_CHANNEL" default:"forum.subscriptions"`
	RateLimit    float64  `envconfig:"EVENT_RATE_LIMIT" default:"0"`
}

// DSN returns the MySQL data source name
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to load db config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Cache); err != nil {
		return nil, fmt.Errorf("failed to load cache config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Events); err != nil {
		return nil, fmt.Errorf("failed to load events config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the mysql driver")
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DB_DRIVER must be one of mysql, sqlite, memory")
	}
	if c.DB.Driver != DriverMemory && c.DB.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Cache.ResetEnabled && c.Cache.ResetInterval <= 0 {
		return fmt.Errorf("CACHE_RESET_INTERVAL must be positive")
	}

	switch c.Events.Sink {
	case SinkLog:
	case SinkKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("EVENT_KAFKA_BROKERS is required for the kafka sink")
		}
		if c.Events.KafkaTopic == "" {
			return fmt.Errorf("EVENT_KAFKA_TOPIC is required for the kafka sink")
		}
	case SinkRedis:
		if c.Events.RedisAddr == "" {
			return fmt.Errorf("EVENT_REDIS_ADDR is required for the redis sink")
		}
		if c.Events.RedisChannel == "" {
			return fmt.Errorf("EVENT_REDIS_CHANNEL is required for the redis sink")
		}
	default:
		return fmt.Errorf("EVENT_SINK must be one of log, kafka, redis")
	}
	if c.Events.RateLimit < 0 {
		return fmt.Errorf("EVENT_RATE_LIMIT must not be negative")
	}
	return nil
}
