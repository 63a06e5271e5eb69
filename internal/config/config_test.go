package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithPassword(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test-password")
	defer os.Unsetenv("DB_PASSWORD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.Password != "test-password" {
		t.Errorf("DB.Password = %v, want %v", cfg.DB.Password, "test-password")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Test DB defaults
	if cfg.DB.Driver != DriverMySQL {
		t.Errorf("DB.Driver = %v, want %v", cfg.DB.Driver, DriverMySQL)
	}
	if cfg.DB.Host != "localhost" {
		t.Errorf("DB.Host = %v, want %v", cfg.DB.Host, "localhost")
	}
	if cfg.DB.Port != 3306 {
		t.Errorf("DB.Port = %v, want %v", cfg.DB.Port, 3306)
	}
	if cfg.DB.Database != "forum_subscriptions" {
		t.Errorf("DB.Database = %v, want %v", cfg.DB.Database, "forum_subscriptions")
	}
	if cfg.DB.MaxConns != 10 {
		t.Errorf("DB.MaxConns = %v, want %v", cfg.DB.MaxConns, 10)
	}

	// Test Cache defaults
	if !cfg.Cache.ResetEnabled {
		t.Errorf("Cache.ResetEnabled = %v, want %v", cfg.Cache.ResetEnabled, true)
	}
	if cfg.Cache.ResetInterval != 5*time.Minute {
		t.Errorf("Cache.ResetInterval = %v, want %v", cfg.Cache.ResetInterval, 5*time.Minute)
	}

	// Test Events defaults
	if cfg.Events.Sink != SinkLog {
		t.Errorf("Events.Sink = %v, want %v", cfg.Events.Sink, SinkLog)
	}
	if len(cfg.Events.KafkaBrokers) != 1 || cfg.Events.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("Events.KafkaBrokers = %v, want [localhost:9092]", cfg.Events.KafkaBrokers)
	}
	if cfg.Events.RateLimit != 0 {
		t.Errorf("Events.RateLimit = %v, want %v", cfg.Events.RateLimit, 0)
	}

	// Test Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, 8080)
	}
}

func TestLoad_KafkaBrokersList(t *testing.T) {
	os.Setenv("EVENT_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	defer os.Unsetenv("EVENT_KAFKA_BROKERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("Events.KafkaBrokers = %v", cfg.Events.KafkaBrokers)
	}
}

func validConfig() Config {
	return Config{
		DB:     DBConfig{Driver: DriverMySQL, Password: "pass", MaxConns: 10},
		Server: ServerConfig{Port: 8080},
		Cache:  CacheConfig{ResetEnabled: true, ResetInterval: time.Minute},
		Events: EventsConfig{Sink: SinkLog},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing db password", mutate: func(c *Config) { c.DB.Password = "" }, wantErr: true},
		{name: "memory driver needs no password", mutate: func(c *Config) {
			c.DB.Driver = DriverMemory
			c.DB.Password = ""
		}, wantErr: false},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.DB.Driver = DriverSQLite
			c.DB.SQLitePath = ""
		}, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "oracle" }, wantErr: true},
		{name: "invalid max conns", mutate: func(c *Config) { c.DB.MaxConns = 0 }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid reset interval", mutate: func(c *Config) { c.Cache.ResetInterval = 0 }, wantErr: true},
		{name: "reset disabled ignores interval", mutate: func(c *Config) {
			c.Cache.ResetEnabled = false
			c.Cache.ResetInterval = 0
		}, wantErr: false},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Events.Sink = SinkKafka
			c.Events.KafkaBrokers = []string{"localhost:9092"}
		}, wantErr: true},
		{name: "redis without channel", mutate: func(c *Config) {
			c.Events.Sink = SinkRedis
			c.Events.RedisAddr = "localhost:6379"
		}, wantErr: true},
		{name: "unknown sink", mutate: func(c *Config) { c.Events.Sink = "smtp" }, wantErr: true},
		{name: "negative rate limit", mutate: func(c *Config) { c.Events.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "root",
		Password: "secret",
		Database: "testdb",
	}

	expected := "root:secret@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	if got := cfg.DSN(); got != expected {
		t.Errorf("DSN() = %v, want %v", got, expected)
	}
}
