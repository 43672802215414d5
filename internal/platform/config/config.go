// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Sync     Sync
	Authz    Authz
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures database connection configuration.
type Postgres struct {
	DSN string
}

// Redis captures the sync-lock backend configuration.
type Redis struct {
	URL string
}

// Kafka captures the audit stream configuration. Empty brokers disable the
// outbox worker; events stay queued in the outbox table.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Sync captures synchronization engine tuning.
type Sync struct {
	LockTTL     time.Duration
	CallTimeout time.Duration
}

// Authz captures authorization gate configuration. AllowAll bypasses every
// permission check and must never be set in production; the gate denies
// everything a grant does not cover.
type Authz struct {
	AllowAll bool
}

// FromEnv builds a Config from environment variables, applying development
// defaults for anything unset.
func FromEnv() Config {
	cfg := Config{
		Server: Server{
			Addr:          envOr("CROSSLINK_ADDR", ":8080"),
			JWTSigningKey: envOr("CROSSLINK_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			DSN: envOr("CROSSLINK_POSTGRES_DSN", ""),
		},
		Redis: Redis{
			URL: envOr("CROSSLINK_REDIS_URL", ""),
		},
		Kafka: Kafka{
			AuditTopic: envOr("CROSSLINK_AUDIT_TOPIC", "crosslink.audit"),
		},
		Sync: Sync{
			LockTTL:     envDuration("CROSSLINK_SYNC_LOCK_TTL", 30*time.Second),
			CallTimeout: envDuration("CROSSLINK_SYNC_TIMEOUT", 15*time.Second),
		},
		Authz: Authz{
			AllowAll: envBool("CROSSLINK_AUTHZ_ALLOW_ALL", false),
		},
	}
	if brokers := os.Getenv("CROSSLINK_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
