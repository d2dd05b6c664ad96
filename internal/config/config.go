package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"moxie/internal/timeline"
)

// Config holds runtime configuration for the report worker.
type Config struct {
	DBURL          string        `env:"DB_URL"`
	DBAutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	RedisURL       string        `env:"REDIS_URL"`
	RedisQueue     string        `env:"REDIS_QUEUE"     envDefault:"moxie_reports"`
	WorkerCount    int           `env:"WORKER_COUNT"    envDefault:"1"`
	JobBufferSize  int           `env:"JOB_BUFFER_SIZE" envDefault:"16"`
	ResultTTL      time.Duration `env:"RESULT_TTL"      envDefault:"24h"`
	MetricsEnabled bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string        `env:"METRICS_ADDR"    envDefault:":9102"`
	LogLevel       string        `env:"LOG_LEVEL"       envDefault:"info"`
	Reducer
}

// Reducer is the part of the configuration the report pipeline itself needs.
type Reducer struct {
	InstantSkills  []uint32 `env:"INSTANT_SKILLS"   envDefault:"40183,5539" envSeparator:","`
	MaxRecordBytes int64    `env:"MAX_RECORD_BYTES" envDefault:"268435456"`
}

// InstantSet returns the configured instant skills as a lookup set.
func (r Reducer) InstantSet() timeline.SkillSet {
	return timeline.NewSkillSet(r.InstantSkills...)
}

// Load builds a Config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is required")
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}

	if cfg.MaxRecordBytes <= 0 {
		return nil, fmt.Errorf("MAX_RECORD_BYTES must be positive, got %d", cfg.MaxRecordBytes)
	}

	if cfg.JobBufferSize < 0 {
		return nil, fmt.Errorf("JOB_BUFFER_SIZE must not be negative, got %d", cfg.JobBufferSize)
	}

	return cfg, nil
}

// LoadReducer reads only the reducer settings, for tools that run the pipeline locally.
func LoadReducer() (Reducer, error) {
	var r Reducer
	if err := env.Parse(&r); err != nil {
		return Reducer{}, fmt.Errorf("parse env: %w", err)
	}
	if r.MaxRecordBytes <= 0 {
		return Reducer{}, fmt.Errorf("MAX_RECORD_BYTES must be positive, got %d", r.MaxRecordBytes)
	}
	return r, nil
}
