package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_URL", "postgres://moxie@localhost/moxie")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "moxie_reports", cfg.RedisQueue)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 16, cfg.JobBufferSize)
	assert.Equal(t, 24*time.Hour, cfg.ResultTTL)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.True(t, cfg.DBAutoMigrate)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []uint32{40183, 5539}, cfg.InstantSkills)
	assert.True(t, cfg.InstantSet().Contains(40183))
	assert.Equal(t, int64(256<<20), cfg.MaxRecordBytes)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_QUEUE", "reports_eu")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("RESULT_TTL", "90m")
	t.Setenv("INSTANT_SKILLS", "1,2,3")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "reports_eu", cfg.RedisQueue)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 90*time.Minute, cfg.ResultTTL)
	assert.Equal(t, []uint32{1, 2, 3}, cfg.InstantSkills)
	assert.False(t, cfg.InstantSet().Contains(40183))
	assert.False(t, cfg.MetricsEnabled)
	assert.False(t, cfg.DBAutoMigrate)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err := Load()
	assert.EqualError(t, err, "DB_URL is required")

	t.Setenv("DB_URL", "postgres://moxie@localhost/moxie")
	t.Setenv("REDIS_URL", "")
	_, err = Load()
	assert.EqualError(t, err, "REDIS_URL is required")
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)

	t.Setenv("WORKER_COUNT", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "WORKER_COUNT")

	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("MAX_RECORD_BYTES", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "MAX_RECORD_BYTES")

	t.Setenv("MAX_RECORD_BYTES", "1024")
	t.Setenv("WORKER_COUNT", "many")
	_, err = Load()
	assert.ErrorContains(t, err, "parse env")
}

func TestLoadReducer(t *testing.T) {
	t.Setenv("INSTANT_SKILLS", "5539")
	r, err := LoadReducer()
	require.NoError(t, err)
	assert.Equal(t, []uint32{5539}, r.InstantSkills)

	t.Setenv("MAX_RECORD_BYTES", "4096")
	r, err = LoadReducer()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), r.MaxRecordBytes)

	t.Setenv("INSTANT_SKILLS", "x")
	_, err = LoadReducer()
	assert.Error(t, err)
}
