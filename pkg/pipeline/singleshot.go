package pipeline

import (
	"context"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/artifact"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RangeSource retrieves a whole date range in one call.
type RangeSource interface {
	FetchRange(ctx context.Context, w window.Window) (record.Batch, error)
}

// SingleShotConfig holds optional driver settings.
type SingleShotConfig struct {
	Source   string
	Policy   artifact.OverwritePolicy
	Progress ProgressFunc
	Mirror   Mirror
}

// SingleShot writes one artifact covering the whole range.
type SingleShot struct {
	source RangeSource
	store  ArtifactStore
	config SingleShotConfig
	logger zerolog.Logger
}

// NewSingleShot creates a single-shot driver. A nil policy keeps existing artifacts.
func NewSingleShot(source RangeSource, store ArtifactStore, config SingleShotConfig, logger zerolog.Logger) *SingleShot {
	if config.Source == "" {
		config.Source = "default"
	}
	if config.Policy == nil {
		config.Policy = artifact.SkipExisting
	}
	return &SingleShot{source: source, store: store, config: config, logger: logger}
}

// Run fetches [start, end] and writes it as a single artifact.
func (d *SingleShot) Run(ctx context.Context, start, end time.Time) (Summary, error) {
	start, end = window.Date(start), window.Date(end)
	if !start.Before(end) {
		return Summary{}, &window.InvalidRangeError{Start: start, End: end, BatchDays: 1}
	}

	started := time.Now()
	w := window.Window{Start: start, End: end, Final: true}
	summary := Summary{RunID: uuid.NewString(), Total: 1}
	logger := d.logger.With().
		Str("run_id", summary.RunID).
		Str("source", d.config.Source).
		Str("window", w.String()).
		Logger()

	outcome, rows := d.handle(ctx, logger, w)
	summary.add(w, outcome, rows)
	summary.Duration = time.Since(started)
	windowsTotal.WithLabelValues(d.config.Source, string(outcome)).Inc()

	if d.config.Progress != nil {
		d.config.Progress(w, outcome)
	}

	logger.Info().
		Str("outcome", string(outcome)).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Single-shot run finished")

	return summary, ctx.Err()
}

func (d *SingleShot) handle(ctx context.Context, logger zerolog.Logger, w window.Window) (Outcome, int) {
	path := d.store.Path(w)

	exists, err := d.store.Exists(w)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot check artifact")
		return OutcomeFailed, 0
	}
	if exists {
		overwrite, err := d.config.Policy.ShouldOverwrite(path)
		if err != nil {
			logger.Error().Err(err).Msg("Overwrite policy failed")
			return OutcomeFailed, 0
		}
		if !overwrite {
			logger.Info().Str("path", path).Msg("Artifact exists - skipping download")
			return OutcomeSkipped, 0
		}
	}

	start := time.Now()
	batch, err := d.source.FetchRange(ctx, w)
	windowDuration.WithLabelValues(d.config.Source).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Msg("Fetch failed")
		return OutcomeFailed, 0
	}
	if batch.Empty() {
		logger.Info().Msg("No data for range")
		return OutcomeEmpty, 0
	}

	// The old artifact is only removed once replacement data is in hand.
	if exists {
		if err := d.store.Remove(w); err != nil {
			logger.Error().Err(err).Msg("Cannot remove old artifact")
			return OutcomeFailed, 0
		}
	}

	art, err := d.store.Write(w, batch)
	if err != nil {
		logger.Error().Err(err).Msg("Writing artifact failed")
		return OutcomeFailed, 0
	}

	mirror(ctx, d.config.Mirror, logger, art.Path)
	return OutcomeProcessed, art.Rows
}
