package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/city-data-fetch/pkg/cache"
	"github.com/Sternrassler/city-data-fetch/pkg/client"
	"github.com/Sternrassler/city-data-fetch/pkg/config"
	"github.com/Sternrassler/city-data-fetch/pkg/logging"
	"github.com/Sternrassler/city-data-fetch/pkg/metrics"
	"github.com/Sternrassler/city-data-fetch/pkg/pipeline"
	"github.com/Sternrassler/city-data-fetch/pkg/publish"
)

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("start") {
		cfg.Run.StartDate = c.String("start")
	}
	if c.IsSet("end") {
		cfg.Run.EndDate = c.String("end")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-pretty") {
		cfg.Log.Pretty = c.Bool("log-pretty")
	}
	if c.IsSet("cache") {
		cfg.Cache.Backend = c.String("cache")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("batch-days") {
		cfg.Requests.BatchDays = c.Int("batch-days")
	}
	if c.IsSet("page-size") {
		cfg.Requests.PageSize = c.Int("page-size")
	}
	if c.IsSet("max-results") {
		cfg.Requests.MaxResults = c.Int("max-results")
	}
	if c.IsSet("write-partial") {
		cfg.Requests.WritePartial = c.Bool("write-partial")
	}
	if c.IsSet("requests-dir") {
		cfg.Requests.OutputDir = c.String("requests-dir")
	}
	if c.IsSet("overwrite") {
		cfg.Weather.Overwrite = c.String("overwrite")
	}
	if c.IsSet("weather-dir") {
		cfg.Weather.OutputDir = c.String("weather-dir")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type depsOptions struct {
	progress bool
	stdin    io.Reader
	stderr   io.Writer
}

// deps holds what every command shares.
type deps struct {
	cfg       *config.Config
	opts      depsOptions
	logger    zerolog.Logger
	transport *client.Client
	mirror    pipeline.Mirror
	closers   []func() error
}

func newDeps(ctx context.Context, cfg *config.Config, opts depsOptions) (*deps, error) {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty, Output: opts.stderr})

	d := &deps{
		cfg:    cfg,
		opts:   opts,
		logger: logging.NewLogger(logging.ComponentCLI),
	}

	if cfg.Metrics.Addr != "" {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, d.logger); err != nil {
			return nil, err
		}
	}

	store, err := d.buildCache(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}

	transportCfg := client.DefaultConfig(cfg.HTTP.UserAgent)
	transportCfg.Timeout = cfg.HTTP.Timeout
	transportCfg.RateLimit = cfg.HTTP.RateLimit
	transportCfg.Cache = store
	transportCfg.CacheTTL = cfg.Cache.TTL
	transportCfg.Retry = client.RetryConfig{
		MaxAttempts:       cfg.HTTP.MaxAttempts,
		InitialBackoff:    cfg.HTTP.InitialBackoff,
		MaxBackoff:        cfg.HTTP.MaxBackoff,
		BackoffMultiplier: 2.0,
	}

	d.transport, err = client.New(transportCfg, logging.NewLogger(logging.ComponentTransport))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	mirrorCfg := publish.S3Config{
		Endpoint:  cfg.Mirror.Endpoint,
		Region:    cfg.Mirror.Region,
		Bucket:    cfg.Mirror.Bucket,
		Prefix:    cfg.Mirror.Prefix,
		AccessKey: cfg.Mirror.AccessKey,
		SecretKey: cfg.Mirror.SecretKey,
		UseSSL:    cfg.Mirror.UseSSL,
	}
	if mirrorCfg.Enabled() {
		m, err := publish.NewS3Mirror(ctx, mirrorCfg, logging.NewLogger(logging.ComponentMirror))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.mirror = m
	}

	return d, nil
}

func (d *deps) buildCache(ctx context.Context) (cache.Store, error) {
	switch d.cfg.Cache.Backend {
	case "memory":
		d.logger.Info().Int("entries", d.cfg.Cache.MemoryEntries).Msg("Using in-memory response cache")
		return cache.NewMemoryStore(d.cfg.Cache.MemoryEntries, d.cfg.Cache.TTL), nil

	case "redis":
		opts, err := redis.ParseURL(d.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		d.closers = append(d.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		d.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis response cache")
		return cache.NewRedisStore(rdb), nil

	default:
		return nil, nil
	}
}

// Close releases external connections.
func (d *deps) Close() error {
	var firstErr error
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.closers = nil
	return firstErr
}
