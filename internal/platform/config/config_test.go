package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CROSSLINK_ADDR", "CROSSLINK_POSTGRES_DSN", "CROSSLINK_REDIS_URL",
		"CROSSLINK_KAFKA_BROKERS", "CROSSLINK_AUDIT_TOPIC",
		"CROSSLINK_SYNC_LOCK_TTL", "CROSSLINK_SYNC_TIMEOUT",
		"CROSSLINK_AUTHZ_ALLOW_ALL",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "crosslink.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, 30*time.Second, cfg.Sync.LockTTL)
	assert.Equal(t, 15*time.Second, cfg.Sync.CallTimeout)
	assert.False(t, cfg.Authz.AllowAll, "permission checks are on unless explicitly bypassed")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CROSSLINK_ADDR", ":9090")
	t.Setenv("CROSSLINK_KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("CROSSLINK_SYNC_LOCK_TTL", "45s")
	t.Setenv("CROSSLINK_AUTHZ_ALLOW_ALL", "true")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Sync.LockTTL)
	assert.True(t, cfg.Authz.AllowAll)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CROSSLINK_SYNC_LOCK_TTL", "soon")
	t.Setenv("CROSSLINK_AUTHZ_ALLOW_ALL", "yep")

	cfg := FromEnv()

	assert.Equal(t, 30*time.Second, cfg.Sync.LockTTL)
	assert.False(t, cfg.Authz.AllowAll, "an unparseable flag never opens the gate")
}
