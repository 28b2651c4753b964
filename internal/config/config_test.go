package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	cfg, err := LoadAPIConfig("", t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "LEDGER_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, domain.RewardPolicyFixed, cfg.Staking.Policy())
	assert.False(t, cfg.Staking.SinglePosition)
	assert.Equal(t, uint64(100), cfg.Access.BronzeThreshold)
	assert.Equal(t, uint64(500), cfg.Access.SilverThreshold)
	assert.Equal(t, uint64(2000), cfg.Access.GoldThreshold)
}

func TestLoadAPIConfigFromEnv(t *testing.T) {
	t.Setenv("DREGAN_DEBUG", "true")
	t.Setenv("DREGAN_SERVER_PORT", "9090")
	t.Setenv("DREGAN_DATABASE_HOST", "db.internal")
	t.Setenv("DREGAN_DATABASE_DBNAME", "ledger")
	t.Setenv("DREGAN_STAKING_REWARD_POLICY", "continuous")
	t.Setenv("DREGAN_STAKING_SINGLE_POSITION", "true")
	t.Setenv("DREGAN_ACCESS_GOLD_THRESHOLD", "5000")

	cfg, err := LoadAPIConfig("", t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "ledger", cfg.Database.DBName)
	assert.Equal(t, domain.RewardPolicyContinuous, cfg.Staking.Policy())
	assert.True(t, cfg.Staking.SinglePosition)
	assert.Equal(t, uint64(5000), cfg.Access.GoldThreshold)
}

func TestLoadAPIConfigRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("DREGAN_STAKING_REWARD_POLICY", "hourly")

	_, err := LoadAPIConfig("", t.TempDir())
	assert.Error(t, err)
}

func TestLoadSweeperConfigDefaults(t *testing.T) {
	cfg, err := LoadSweeperConfig("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "24h0m0s", cfg.Reverifier.ReverifyAfter.String())
	assert.Equal(t, "10m0s", cfg.Reverifier.Interval.String())
	assert.Equal(t, 500, cfg.Reverifier.BatchSize)
	assert.Equal(t, 20, cfg.Reverifier.Worker.WorkerPoolSize)
	assert.Equal(t, 2048, cfg.Reverifier.Worker.WorkerQueueSize)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		DBName:   "ledger",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=ledger sslmode=disable",
		cfg.DSN())
}
