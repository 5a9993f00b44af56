// Package config loads run settings from an optional YAML file, a .env
// file and the environment. Defaults reproduce the NYC collection setup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Sternrassler/city-data-fetch/pkg/window"
)

// ErrMissingToken is returned when the 311 source has no app token.
var ErrMissingToken = errors.New("missing app token (set NYC_APP_TOKEN)")

type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Requests RequestsConfig `mapstructure:"requests"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type RunConfig struct {
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

type RequestsConfig struct {
	// BaseURL overrides https://<domain>
	BaseURL      string        `mapstructure:"base_url"`
	Domain       string        `mapstructure:"domain"`
	DatasetID    string        `mapstructure:"dataset_id"`
	AppToken     string        `mapstructure:"app_token"`
	DateField    string        `mapstructure:"date_field"`
	Columns      []string      `mapstructure:"columns"`
	BatchDays    int           `mapstructure:"batch_days"`
	PageSize     int           `mapstructure:"page_size"`
	MaxResults   int           `mapstructure:"max_results"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	WindowDelay  time.Duration `mapstructure:"window_delay"`
	OutputDir    string        `mapstructure:"output_dir"`
	WritePartial bool          `mapstructure:"write_partial"`
}

type WeatherConfig struct {
	BaseURL   string   `mapstructure:"base_url"`
	Latitude  float64  `mapstructure:"latitude"`
	Longitude float64  `mapstructure:"longitude"`
	Timezone  string   `mapstructure:"timezone"`
	Variables []string `mapstructure:"variables"`
	OutputDir string   `mapstructure:"output_dir"`
	Overwrite string   `mapstructure:"overwrite"`
}

type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type CacheConfig struct {
	// Backend is one of "none", "memory" or "redis"
	Backend       string        `mapstructure:"backend"`
	RedisURL      string        `mapstructure:"redis_url"`
	TTL           time.Duration `mapstructure:"ttl"`
	MemoryEntries int           `mapstructure:"memory_entries"`
}

type MirrorConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("requests.app_token", "NYC_APP_TOKEN")
	v.BindEnv("cache.redis_url", "REDIS_URL")
	v.BindEnv("mirror.bucket", "S3_BUCKET")
	v.BindEnv("mirror.endpoint", "S3_ENDPOINT")
	v.BindEnv("mirror.access_key", "S3_ACCESS_KEY")
	v.BindEnv("mirror.secret_key", "S3_SECRET_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.start_date", "2023-01-01")
	v.SetDefault("run.end_date", "2024-12-31")

	v.SetDefault("requests.base_url", "")
	v.SetDefault("requests.domain", "data.cityofnewyork.us")
	v.SetDefault("requests.dataset_id", "erm2-nwe9")
	v.SetDefault("requests.date_field", "created_date")
	v.SetDefault("requests.columns", []string{
		"unique_key", "created_date", "closed_date", "agency", "complaint_type",
		"descriptor", "status", "borough", "latitude", "longitude",
	})
	v.SetDefault("requests.batch_days", 30)
	v.SetDefault("requests.page_size", 50000)
	v.SetDefault("requests.max_results", 0)
	v.SetDefault("requests.page_delay", "1s")
	v.SetDefault("requests.window_delay", "2s")
	v.SetDefault("requests.output_dir", "data/raw/311")
	v.SetDefault("requests.write_partial", false)

	v.SetDefault("weather.base_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("weather.latitude", 40.7128)
	v.SetDefault("weather.longitude", -74.0060)
	v.SetDefault("weather.timezone", "America/New_York")
	v.SetDefault("weather.variables", []string{
		"temperature_2m_mean", "temperature_2m_max", "temperature_2m_min",
		"precipitation_sum", "rain_sum", "snowfall_sum", "windspeed_10m_max", "weathercode",
	})
	v.SetDefault("weather.output_dir", "data/raw/weather")
	v.SetDefault("weather.overwrite", "ask")

	v.SetDefault("http.user_agent", "city-data-fetch/1.0")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.max_attempts", 6)
	v.SetDefault("http.initial_backoff", "200ms")
	v.SetDefault("http.max_backoff", "30s")

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("cache.memory_entries", 256)

	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.use_ssl", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Range parses the configured run dates.
func (c *Config) Range() (start, end time.Time, err error) {
	if start, err = window.ParseDate(c.Run.StartDate); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	if end, err = window.ParseDate(c.Run.EndDate); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	return start, end, nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	start, end, err := c.Range()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("start_date %s must be before end_date %s", c.Run.StartDate, c.Run.EndDate)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.MaxAttempts < 1 {
		return fmt.Errorf("http.max_attempts must be >= 1")
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend)
	}
	return nil
}

// ValidateRequests checks settings of the 311 source.
func (c *Config) ValidateRequests() error {
	if strings.TrimSpace(c.Requests.AppToken) == "" {
		return ErrMissingToken
	}
	if c.Requests.BatchDays < 1 {
		return fmt.Errorf("requests.batch_days must be >= 1")
	}
	if c.Requests.PageSize < 1 {
		return fmt.Errorf("requests.page_size must be >= 1")
	}
	if len(c.Requests.Columns) == 0 {
		return fmt.Errorf("requests.columns must not be empty")
	}
	return nil
}

// ValidateWeather checks settings of the weather source.
func (c *Config) ValidateWeather() error {
	if c.Weather.Timezone == "" {
		return fmt.Errorf("weather.timezone is required")
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 {
		return fmt.Errorf("weather.latitude out of range: %v", c.Weather.Latitude)
	}
	if c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return fmt.Errorf("weather.longitude out of range: %v", c.Weather.Longitude)
	}
	if len(c.Weather.Variables) == 0 {
		return fmt.Errorf("weather.variables must not be empty")
	}
	return nil
}
