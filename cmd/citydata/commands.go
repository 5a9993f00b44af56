package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/city-data-fetch/pkg/artifact"
	"github.com/Sternrassler/city-data-fetch/pkg/logging"
	"github.com/Sternrassler/city-data-fetch/pkg/openmeteo"
	"github.com/Sternrassler/city-data-fetch/pkg/pagination"
	"github.com/Sternrassler/city-data-fetch/pkg/pipeline"
	"github.com/Sternrassler/city-data-fetch/pkg/socrata"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
)

// exitFailedWindows is the exit code when a run finished with failed windows.
const exitFailedWindows = 2

func runRequests(ctx context.Context, d *deps) error {
	summary, err := fetchRequests(ctx, d)
	if err != nil {
		return err
	}
	return exitOnFailure(summary)
}

func runWeather(ctx context.Context, d *deps) error {
	summary, err := fetchWeather(ctx, d)
	if err != nil {
		return err
	}
	return exitOnFailure(summary)
}

func runAll(ctx context.Context, d *deps) error {
	requests, err := fetchRequests(ctx, d)
	if err != nil {
		return err
	}
	weather, err := fetchWeather(ctx, d)
	if err != nil {
		return err
	}

	if failed := requests.Failed + weather.Failed; failed > 0 {
		return cli.Exit(fmt.Sprintf("%d fetch unit(s) failed", failed), exitFailedWindows)
	}
	return nil
}

func fetchRequests(ctx context.Context, d *deps) (pipeline.Summary, error) {
	cfg := d.cfg
	if err := cfg.ValidateRequests(); err != nil {
		return pipeline.Summary{}, fmt.Errorf("invalid config: %w", err)
	}

	src, err := socrata.NewSource(d.transport, socrata.Config{
		BaseURL:   cfg.Requests.BaseURL,
		Domain:    cfg.Requests.Domain,
		DatasetID: cfg.Requests.DatasetID,
		AppToken:  cfg.Requests.AppToken,
		Columns:   cfg.Requests.Columns,
		DateField: cfg.Requests.DateField,
	})
	if err != nil {
		return pipeline.Summary{}, err
	}

	writer, err := artifact.NewWriter(cfg.Requests.OutputDir, "311_data", src.Columns(),
		logging.NewLogger(logging.ComponentWriter))
	if err != nil {
		return pipeline.Summary{}, err
	}

	fetcher := pagination.NewFetcher(src, pagination.Config{
		PageSize:   cfg.Requests.PageSize,
		MaxResults: cfg.Requests.MaxResults,
		PageDelay:  cfg.Requests.PageDelay,
	}, logging.NewLogger(logging.ComponentFetcher))

	start, end, err := cfg.Range()
	if err != nil {
		return pipeline.Summary{}, err
	}
	params := pipeline.Params{Start: start, End: end, BatchDays: cfg.Requests.BatchDays}

	windows, err := window.Plan(start, end, params.BatchDays)
	if err != nil {
		return pipeline.Summary{}, err
	}
	bar := newProgress(d, len(windows), "311 windows")
	defer bar.Finish()

	driver := pipeline.NewWindowed(fetcher, writer, pipeline.WindowedConfig{
		Source:       "requests",
		WindowDelay:  cfg.Requests.WindowDelay,
		WritePartial: cfg.Requests.WritePartial,
		Progress:     bar.Hook,
		Mirror:       d.mirror,
	}, logging.NewLogger(logging.ComponentPipeline))

	return driver.Run(ctx, params)
}

func fetchWeather(ctx context.Context, d *deps) (pipeline.Summary, error) {
	cfg := d.cfg
	if err := cfg.ValidateWeather(); err != nil {
		return pipeline.Summary{}, fmt.Errorf("invalid config: %w", err)
	}

	om, err := openmeteo.NewClient(d.transport, openmeteo.Config{
		BaseURL:   cfg.Weather.BaseURL,
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Timezone:  cfg.Weather.Timezone,
		Variables: cfg.Weather.Variables,
	})
	if err != nil {
		return pipeline.Summary{}, err
	}

	writer, err := artifact.NewWriter(cfg.Weather.OutputDir, "weather_nyc", om.Columns(),
		logging.NewLogger(logging.ComponentWriter))
	if err != nil {
		return pipeline.Summary{}, err
	}

	policy, err := artifact.ParsePolicy(cfg.Weather.Overwrite, d.opts.stdin, d.opts.stderr)
	if err != nil {
		return pipeline.Summary{}, err
	}

	start, end, err := cfg.Range()
	if err != nil {
		return pipeline.Summary{}, err
	}

	driver := pipeline.NewSingleShot(om, writer, pipeline.SingleShotConfig{
		Source: "weather",
		Policy: policy,
		Mirror: d.mirror,
	}, logging.NewLogger(logging.ComponentPipeline))

	return driver.Run(ctx, start, end)
}

func exitOnFailure(summary pipeline.Summary) error {
	if summary.OK() {
		return nil
	}
	return cli.Exit(fmt.Sprintf("%d fetch unit(s) failed: %s", summary.Failed, summary.FailedList()), exitFailedWindows)
}
