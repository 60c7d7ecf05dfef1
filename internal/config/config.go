package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server ServerConfig
	MySQL  MySQLConfig
	Redis  RedisConfig
	Cache  CacheConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MySQLConfig holds settings for the relational store.
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds settings for the snapshot cache.
type RedisConfig struct {
	Addr string
}

// CacheConfig holds read-side cache tuning.
type CacheConfig struct {
	SnapshotTTL time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from
		// the environment directly.
		_ = godotenv.Load()
	}

	ttlSeconds, err := strconv.Atoi(getenvWithDefault("SNAPSHOT_TTL_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("SNAPSHOT_TTL_SECONDS must be an integer: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN: getenvWithDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/donations?parseTime=true"),
		},
		Redis: RedisConfig{
			Addr: getenvWithDefault("REDIS_ADDR", "localhost:6379"),
		},
		Cache: CacheConfig{
			SnapshotTTL: time.Duration(ttlSeconds) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.MySQL.DSN == "" {
		return errors.New("MYSQL_DSN must be provided")
	}
	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR must be provided")
	}
	if c.Cache.SnapshotTTL <= 0 {
		return errors.New("SNAPSHOT_TTL_SECONDS must be positive")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
