// Package config loads oracleflow's environment-variable configuration
// surface, per spec.md §6, as a nested struct built by an explicit
// Load/validate pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode toggles signature strictness and unauthenticated-route exposure.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// Config is the fully resolved process configuration.
type Config struct {
	Host        string
	Port        int
	MetricsPort int

	OffchainDatabaseURL string
	OnchainDatabaseURL  string
	DatabaseMaxConn     int

	KafkaBrokers []string
	Topic        string
	GroupID      string

	RedisURL string

	Mode Mode

	OTLPEndpoint string

	AdmissionMaxAge      time.Duration
	AdmissionMaxFuture   time.Duration
	PublisherMaxSessions int

	RateLimit RateLimitDefaults

	LogLevel  string
	LogFormat string
	LogOutput string
}

// RateLimitDefaults are the opt-in-overridable per-route-class token
// bucket defaults, per spec.md §4.6/§6.
type RateLimitDefaults struct {
	PublicRPS    int
	PublicBurst  int
	PublishRPS   int
	PublishBurst int
}

// Load reads configuration from the environment, applying spec.md §3's
// admission-window defaults and spec.md §4.1's per-publisher session cap
// where no override is set.
func Load() (*Config, error) {
	cfg := &Config{
		Host:                 getEnv("HOST", "0.0.0.0"),
		Port:                 getEnvInt("PORT", 8080),
		MetricsPort:          getEnvInt("METRICS_PORT", 9090),
		OffchainDatabaseURL:  os.Getenv("OFFCHAIN_DATABASE_URL"),
		OnchainDatabaseURL:   os.Getenv("ONCHAIN_DATABASE_URL"),
		DatabaseMaxConn:      getEnvInt("DATABASE_MAX_CONN", 20),
		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:                getEnv("TOPIC", "pragma-data"),
		GroupID:              getEnv("GROUP_ID", "oracleflow-consumer"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		Mode:                 Mode(getEnv("MODE", string(ModeDev))),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdmissionMaxAge:      getEnvDuration("ADMISSION_MAX_AGE", 10*time.Minute),
		AdmissionMaxFuture:   getEnvDuration("ADMISSION_MAX_FUTURE", 10*time.Second),
		PublisherMaxSessions: getEnvInt("PUBLISHER_MAX_SESSIONS", 1),
		RateLimit: RateLimitDefaults{
			PublicRPS:    getEnvInt("RATE_LIMIT_PUBLIC_RPS", 50),
			PublicBurst:  getEnvInt("RATE_LIMIT_PUBLIC_BURST", 100),
			PublishRPS:   getEnvInt("RATE_LIMIT_PUBLISH_RPS", 20),
			PublishBurst: getEnvInt("RATE_LIMIT_PUBLISH_BURST", 40),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Mode != ModeDev && cfg.Mode != ModeProd {
		return fmt.Errorf("MODE must be %q or %q, got %q", ModeDev, ModeProd, cfg.Mode)
	}
	if cfg.Port <= 0 {
		return fmt.Errorf("PORT must be positive")
	}
	if cfg.OffchainDatabaseURL == "" {
		return fmt.Errorf("OFFCHAIN_DATABASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must list at least one broker")
	}
	if cfg.DatabaseMaxConn <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONN must be greater than 0")
	}
	if cfg.PublisherMaxSessions <= 0 {
		return fmt.Errorf("PUBLISHER_MAX_SESSIONS must be greater than 0")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
