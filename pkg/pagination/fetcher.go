package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/ratelimit"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_pages_fetched_total",
		Help: "Total page requests by outcome",
	}, []string{"outcome"})

	rowsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citydata_rows_fetched_total",
		Help: "Total rows retrieved across all pages",
	})
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 50000

// State is the lifecycle state of a window fetch.
type State string

const (
	StateFetching State = "fetching"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// FetchRequest identifies one page of one window.
type FetchRequest struct {
	Window   window.Window
	Offset   int
	PageSize int
}

// PageSource returns one page of rows for a request, ordered by a stable
// monotonic key so that offsets neither skip nor repeat rows.
type PageSource interface {
	FetchPage(ctx context.Context, req FetchRequest) ([]record.Row, error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc func(ctx context.Context, req FetchRequest) ([]record.Row, error)

// FetchPage calls f.
func (f PageSourceFunc) FetchPage(ctx context.Context, req FetchRequest) ([]record.Row, error) {
	return f(ctx, req)
}

// FetchError reports a failed page request within a window.
type FetchError struct {
	Window window.Window
	Offset int
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch window %s at offset %d: %v", e.Window, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is the outcome of fetching one window.
type Result struct {
	Window   window.Window
	Rows     record.Batch
	Pages    int
	State    State
	Err      error
	Duration time.Duration
}

// Complete reports whether every page of the window was retrieved.
func (r Result) Complete() bool {
	return r.State == StateDone
}

// Config holds fetcher configuration.
type Config struct {
	// PageSize is the maximum number of rows per page request
	PageSize int

	// MaxResults stops the window after this many rows (0 = no limit)
	MaxResults int

	// PageDelay is the politeness pause between pages of one window
	PageDelay time.Duration
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:  DefaultPageSize,
		PageDelay: 1 * time.Second,
	}
}

// Fetcher pages through a source one window at a time.
type Fetcher struct {
	source PageSource
	config Config
	pacer  *ratelimit.Pacer
	logger zerolog.Logger
}

// NewFetcher creates a fetcher for source.
func NewFetcher(source PageSource, config Config, logger zerolog.Logger) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxResults < 0 {
		config.MaxResults = 0
	}

	return &Fetcher{
		source: source,
		config: config,
		pacer:  ratelimit.NewPacer(ratelimit.ScopePage, config.PageDelay, logger),
		logger: logger,
	}
}

// WithPacer replaces the page pacer (for testing).
func (f *Fetcher) WithPacer(p *ratelimit.Pacer) *Fetcher {
	f.pacer = p
	return f
}

// FetchWindow retrieves every page of w in order. On a page failure it stops,
// returns the rows gathered so far and sets State to StateFailed.
func (f *Fetcher) FetchWindow(ctx context.Context, w window.Window) Result {
	start := time.Now()
	result := Result{Window: w, State: StateFetching}
	pageSize := f.config.PageSize

	for offset := 0; result.State == StateFetching; offset += pageSize {
		if offset > 0 {
			if err := f.pacer.Pause(ctx); err != nil {
				result.fail(offset, err)
				break
			}
		}

		limit := pageSize
		if f.config.MaxResults > 0 {
			limit = min(limit, f.config.MaxResults-len(result.Rows))
		}

		rows, err := f.source.FetchPage(ctx, FetchRequest{Window: w, Offset: offset, PageSize: limit})
		result.Pages++
		if err != nil {
			pagesFetchedTotal.WithLabelValues("error").Inc()
			f.logger.Warn().
				Err(err).
				Str("window", w.String()).
				Int("offset", offset).
				Int("rows_kept", len(result.Rows)).
				Msg("Page fetch failed - keeping partial window")
			result.fail(offset, err)
			break
		}

		pagesFetchedTotal.WithLabelValues("ok").Inc()
		rowsFetchedTotal.Add(float64(len(rows)))
		result.Rows = append(result.Rows, rows...)

		if len(rows) > 0 {
			f.logger.Info().
				Str("window", w.String()).
				Int("rows", len(rows)).
				Int("total", len(result.Rows)).
				Msg("Fetched page")
		}

		switch {
		case len(rows) < limit:
			// Short or empty page: the window is exhausted.
			result.State = StateDone
		case f.config.MaxResults > 0 && len(result.Rows) >= f.config.MaxResults:
			result.State = StateDone
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Result) fail(offset int, err error) {
	r.State = StateFailed
	r.Err = &FetchError{Window: r.Window, Offset: offset, Err: err}
}
