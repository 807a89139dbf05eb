package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Alterity dispatch server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Stream   StreamConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// DispatchConfig controls run submission.
type DispatchConfig struct {
	// QueueName is the Redis list workers consume jobs from.
	QueueName string
	// DefaultModel is used when a submission omits model_name.
	DefaultModel string
}

// StreamConfig controls the live result subscription path.
type StreamConfig struct {
	// ListenRetries is how many consecutive LISTEN failures are tolerated
	// before subscriptions are terminated with an error event.
	ListenRetries int
	RetryBackoff  time.Duration
	// Keepalive is the SSE comment interval for idle connections.
	Keepalive time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ALTERITY_PORT", 8080),
			Env:  envString("ALTERITY_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Dispatch: DispatchConfig{
			QueueName:    envString("ALTERITY_JOB_QUEUE", "alterity_jobs"),
			DefaultModel: envString("ALTERITY_DEFAULT_MODEL", "gpt-4-turbo"),
		},
		Stream: StreamConfig{
			ListenRetries: envInt("ALTERITY_LISTEN_RETRIES", 5),
			RetryBackoff:  envDuration("ALTERITY_LISTEN_RETRY_BACKOFF", 2*time.Second),
			Keepalive:     envDuration("ALTERITY_STREAM_KEEPALIVE", 15*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Dispatch.QueueName == "" {
		return fmt.Errorf("ALTERITY_JOB_QUEUE must not be empty")
	}
	if c.Dispatch.DefaultModel == "" {
		return fmt.Errorf("ALTERITY_DEFAULT_MODEL must not be empty")
	}

	if c.Stream.ListenRetries < 1 {
		return fmt.Errorf("ALTERITY_LISTEN_RETRIES must be at least 1, got %d", c.Stream.ListenRetries)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
