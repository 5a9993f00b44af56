package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/pagination"
	"github.com/Sternrassler/city-data-fetch/pkg/ratelimit"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WindowFetcher retrieves all pages of one window.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, w window.Window) pagination.Result
}

// WindowedConfig holds optional driver settings.
type WindowedConfig struct {
	// Source labels metrics and logs
	Source string

	// WindowDelay is the pause between fetched windows
	WindowDelay time.Duration

	// WritePartial persists the rows of a failed window. The window is still
	// counted as failed, but a re-run will skip it.
	WritePartial bool

	Progress ProgressFunc
	Mirror   Mirror
}

// Windowed processes a date range window by window.
type Windowed struct {
	fetcher WindowFetcher
	store   ArtifactStore
	config  WindowedConfig
	pacer   *ratelimit.Pacer
	logger  zerolog.Logger
}

// NewWindowed creates a windowed driver.
func NewWindowed(fetcher WindowFetcher, store ArtifactStore, config WindowedConfig, logger zerolog.Logger) *Windowed {
	if config.Source == "" {
		config.Source = "default"
	}
	return &Windowed{
		fetcher: fetcher,
		store:   store,
		config:  config,
		pacer:   ratelimit.NewPacer(ratelimit.ScopeWindow, config.WindowDelay, logger),
		logger:  logger,
	}
}

// WithPacer replaces the window pacer (for testing).
func (d *Windowed) WithPacer(p *ratelimit.Pacer) *Windowed {
	d.pacer = p
	return d
}

// Run plans p and handles every window in ascending order.
// The returned error is non-nil only for an invalid range or a cancelled context.
func (d *Windowed) Run(ctx context.Context, p Params) (Summary, error) {
	windows, err := window.Plan(p.Start, p.End, p.BatchDays)
	if err != nil {
		return Summary{}, err
	}

	started := time.Now()
	summary := Summary{RunID: uuid.NewString(), Total: len(windows)}
	logger := d.logger.With().Str("run_id", summary.RunID).Str("source", d.config.Source).Logger()

	logger.Info().
		Int("windows", len(windows)).
		Str("start", p.Start.Format(window.DateLayout)).
		Str("end", p.End.Format(window.DateLayout)).
		Int("batch_days", p.BatchDays).
		Msg("Starting windowed run")

	fetched := false
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(started)
			return summary, err
		}

		if fetched {
			if err := d.pacer.Pause(ctx); err != nil {
				summary.Duration = time.Since(started)
				return summary, err
			}
		}

		outcome, rows, didFetch := d.handle(ctx, logger, w)
		fetched = didFetch
		summary.add(w, outcome, rows)
		windowsTotal.WithLabelValues(d.config.Source, string(outcome)).Inc()

		if d.config.Progress != nil {
			d.config.Progress(w, outcome)
		}
	}

	summary.Duration = time.Since(started)
	event := logger.Info()
	if !summary.OK() {
		event = logger.Warn().Str("failed_windows", summary.FailedList())
	}
	event.
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("empty", summary.Empty).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Windowed run finished")

	return summary, nil
}

// handle processes one window and reports whether it hit the network.
func (d *Windowed) handle(ctx context.Context, logger zerolog.Logger, w window.Window) (Outcome, int, bool) {
	wlog := logger.With().Str("window", w.String()).Logger()

	exists, err := d.store.Exists(w)
	if err != nil {
		wlog.Error().Err(err).Msg("Cannot check artifact")
		return OutcomeFailed, 0, false
	}
	if exists {
		wlog.Info().Str("path", d.store.Path(w)).Msg("Artifact exists - skipping window")
		return OutcomeSkipped, 0, false
	}

	start := time.Now()
	defer func() {
		windowDuration.WithLabelValues(d.config.Source).Observe(time.Since(start).Seconds())
	}()

	wlog.Info().Msg("Fetching window")
	result := d.fetcher.FetchWindow(ctx, w)

	if !result.Complete() {
		wlog.Error().
			Err(result.Err).
			Int("rows", result.Rows.Len()).
			Int("pages", result.Pages).
			Msg("Window fetch failed")

		if d.config.WritePartial && !result.Rows.Empty() {
			if _, err := d.write(ctx, wlog, w, result); err != nil {
				wlog.Error().Err(err).Msg("Writing partial window failed")
			}
		}
		return OutcomeFailed, 0, true
	}

	if result.Rows.Empty() {
		wlog.Info().Msg("No data for window")
		return OutcomeEmpty, 0, true
	}

	rows, err := d.write(ctx, wlog, w, result)
	if err != nil {
		wlog.Error().Err(err).Msg("Writing window failed")
		return OutcomeFailed, 0, true
	}
	return OutcomeProcessed, rows, true
}

func (d *Windowed) write(ctx context.Context, wlog zerolog.Logger, w window.Window, result pagination.Result) (int, error) {
	art, err := d.store.Write(w, result.Rows)
	if err != nil {
		return 0, err
	}
	if !art.Written {
		return 0, nil
	}
	mirror(ctx, d.config.Mirror, wlog, art.Path)
	return art.Rows, nil
}

func mirror(ctx context.Context, m Mirror, logger zerolog.Logger, path string) {
	if m == nil {
		return
	}
	if err := m.Mirror(ctx, path); err != nil {
		mirrorErrorsTotal.Inc()
		if !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Str("path", path).Msg("Mirroring artifact failed")
		}
	}
}
