package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NYC_APP_TOKEN", "")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "2023-01-01", cfg.Run.StartDate)
	assert.Equal(t, "2024-12-31", cfg.Run.EndDate)
	assert.Equal(t, "erm2-nwe9", cfg.Requests.DatasetID)
	assert.Equal(t, 30, cfg.Requests.BatchDays)
	assert.Equal(t, 50000, cfg.Requests.PageSize)
	assert.Equal(t, time.Second, cfg.Requests.PageDelay)
	assert.Equal(t, 2*time.Second, cfg.Requests.WindowDelay)
	assert.Equal(t, "data/raw/311", cfg.Requests.OutputDir)
	assert.Len(t, cfg.Requests.Columns, 10)
	assert.InDelta(t, 40.7128, cfg.Weather.Latitude, 1e-9)
	assert.InDelta(t, -74.006, cfg.Weather.Longitude, 1e-9)
	assert.Equal(t, "America/New_York", cfg.Weather.Timezone)
	assert.Len(t, cfg.Weather.Variables, 8)
	assert.Equal(t, 60*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 6, cfg.HTTP.MaxAttempts)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Zero(t, cfg.Cache.TTL)

	require.NoError(t, cfg.Validate())
	assert.ErrorIs(t, cfg.ValidateRequests(), ErrMissingToken)
	assert.NoError(t, cfg.ValidateWeather())
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("NYC_APP_TOKEN", "secret-token")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg, err := Load(writeConfig(t, `
run:
  start_date: "2024-01-01"
  end_date: "2024-01-10"
requests:
  batch_days: 3
  page_delay: 250ms
cache:
  backend: redis
weather:
  overwrite: skip
`))
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Requests.AppToken)
	assert.Equal(t, "redis://cache:6379/2", cfg.Cache.RedisURL)
	assert.Equal(t, 3, cfg.Requests.BatchDays)
	assert.Equal(t, 250*time.Millisecond, cfg.Requests.PageDelay)
	assert.Equal(t, "skip", cfg.Weather.Overwrite)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateRequests())

	start, end, err := cfg.Range()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-10", end.Format("2006-01-02"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Run:      RunConfig{StartDate: "2024-01-01", EndDate: "2024-02-01"},
			Requests: RequestsConfig{AppToken: "t", BatchDays: 30, PageSize: 100, Columns: []string{"a"}},
			Weather:  WeatherConfig{Timezone: "UTC", Variables: []string{"rain_sum"}},
			HTTP:     HTTPConfig{Timeout: time.Second, MaxAttempts: 1},
			Cache:    CacheConfig{Backend: "memory"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*Config) error
	}{
		{"inverted range", func(c *Config) { c.Run.EndDate = "2023-12-01" }, (*Config).Validate},
		{"bad date", func(c *Config) { c.Run.StartDate = "01/01/2024" }, (*Config).Validate},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, (*Config).Validate},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "disk" }, (*Config).Validate},
		{"zero batch", func(c *Config) { c.Requests.BatchDays = 0 }, (*Config).ValidateRequests},
		{"zero page", func(c *Config) { c.Requests.PageSize = 0 }, (*Config).ValidateRequests},
		{"blank token", func(c *Config) { c.Requests.AppToken = "  " }, (*Config).ValidateRequests},
		{"latitude", func(c *Config) { c.Weather.Latitude = 91 }, (*Config).ValidateWeather},
		{"no variables", func(c *Config) { c.Weather.Variables = nil }, (*Config).ValidateWeather},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			require.NoError(t, tt.check(c), "baseline must be valid")
			tt.mutate(c)
			assert.Error(t, tt.check(c))
		})
	}
}
