package config_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-legal/custodia/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sha256", cfg.Integrity.HashAlgorithm)
	assert.False(t, cfg.Integrity.StrictMode)
	assert.Equal(t, 24*time.Hour, cfg.Integrity.MaxProofAge)
	assert.Equal(t, 30*time.Second, cfg.Integrity.GateCacheTTL)
	assert.Equal(t, time.Hour, cfg.Integrity.AuditInterval)
	assert.InDelta(t, 10.0, cfg.Integrity.AuditRateLimit, 0.001)
	assert.Empty(t, cfg.Integrity.Workspaces)
	assert.Equal(t, "./data/blobs", cfg.Blob.Root)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CUSTODIA_DB_HOST", "db.internal")
	t.Setenv("CUSTODIA_DB_PORT", "5433")
	t.Setenv("CUSTODIA_HASH_ALGORITHM", "sha3-256")
	t.Setenv("CUSTODIA_STRICT_MODE", "true")
	t.Setenv("CUSTODIA_MAX_PROOF_AGE", "12h")
	t.Setenv("CUSTODIA_AUDIT_RATE_LIMIT", "2.5")

	workspaceID := uuid.New()
	t.Setenv("CUSTODIA_WORKSPACES", workspaceID.String())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "sha3-256", cfg.Integrity.HashAlgorithm)
	assert.True(t, cfg.Integrity.StrictMode)
	assert.Equal(t, 12*time.Hour, cfg.Integrity.MaxProofAge)
	assert.InDelta(t, 2.5, cfg.Integrity.AuditRateLimit, 0.001)
	assert.Equal(t, []uuid.UUID{workspaceID}, cfg.Integrity.Workspaces)
}

func TestLoadUUIDList(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	t.Setenv("CUSTODIA_STRICT_WORKSPACES", first.String()+" , "+second.String())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{first, second}, cfg.Integrity.StrictWorkspaces)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad db port", key: "CUSTODIA_DB_PORT", value: "99999"},
		{name: "unparsable db port", key: "CUSTODIA_DB_PORT", value: "not-a-number"},
		{name: "zero max conns", key: "CUSTODIA_DB_MAX_CONNS", value: "0"},
		{name: "unknown hash algorithm", key: "CUSTODIA_HASH_ALGORITHM", value: "md5"},
		{name: "negative proof age", key: "CUSTODIA_MAX_PROOF_AGE", value: "-1h"},
		{name: "zero gate ttl", key: "CUSTODIA_GATE_CACHE_TTL", value: "0s"},
		{name: "negative rate limit", key: "CUSTODIA_AUDIT_RATE_LIMIT", value: "-1"},
		{name: "bad workspace id", key: "CUSTODIA_WORKSPACES", value: "not-a-uuid"},
		{name: "bad duration", key: "CUSTODIA_AUDIT_INTERVAL", value: "soon"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := config.Load()
			require.Error(t, err)
		})
	}
}

func TestSlackRequiresChannel(t *testing.T) {
	t.Setenv("CUSTODIA_SLACK_BOT_TOKEN", "xoxb-test")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("CUSTODIA_SLACK_ALERT_CHANNEL", "C0ALERTS")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "C0ALERTS", cfg.Slack.AlertChannel)
}

func TestDSN(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "custodia",
		Password: "secret",
		DBName:   "custodia_prod",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db port=5432 user=custodia password=secret dbname=custodia_prod sslmode=require",
		db.DSN(),
	)
}
