package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.False(t, cfg.Progress.CacheEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Progress.CacheTTL)
	assert.Equal(t, "primary", cfg.Assignments.DefaultType)
	assert.Equal(t, 5000, cfg.Exports.MaxRows)
	assert.Equal(t, JobsConfig{RecomputeWorkers: 2, MaxRetries: 3, RetryDelay: 5 * time.Second}, cfg.Jobs)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("PROGRESS_CACHE_TTL", "bogus")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("EXPORT_MAX_ROWS", -1)

	cfg := fromViper(v)
	assert.Equal(t, 2*time.Minute, cfg.Progress.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5000, cfg.Exports.MaxRows)
}

func TestDefaultAcademicYear(t *testing.T) {
	assert.Equal(t, "2025-2026", defaultAcademicYear(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-2027", defaultAcademicYear(time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)))
}
