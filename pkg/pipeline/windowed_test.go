package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/artifact"
	"github.com/Sternrassler/city-data-fetch/pkg/pagination"
	"github.com/Sternrassler/city-data-fetch/pkg/ratelimit"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

// pageFunc returns rows for a page request; the default serves one short page per window.
type pageFunc func(req pagination.FetchRequest) ([]record.Row, error)

type fakeSource struct {
	pages pageFunc
	calls int
}

func (s *fakeSource) FetchPage(_ context.Context, req pagination.FetchRequest) ([]record.Row, error) {
	s.calls++
	return s.pages(req)
}

func rows(n int, w window.Window) []record.Row {
	out := make([]record.Row, n)
	for i := range out {
		out[i] = record.Row{"unique_key": i, "created_date": w.Start.Format(window.DateLayout)}
	}
	return out
}

type harness struct {
	dir     string
	source  *fakeSource
	writer  *artifact.Writer
	driver  *Windowed
	pauses  int
	logs    *bytes.Buffer
	outcome []Outcome
}

func newHarness(t *testing.T, pages pageFunc, cfg WindowedConfig) *harness {
	t.Helper()

	h := &harness{dir: t.TempDir(), source: &fakeSource{pages: pages}, logs: &bytes.Buffer{}}
	logger := zerolog.New(h.logs)

	var err error
	h.writer, err = artifact.NewWriter(h.dir, "311_data", []string{"unique_key", "created_date"}, logger)
	require.NoError(t, err)

	fetcher := pagination.NewFetcher(h.source, pagination.Config{PageSize: 10}, logger)

	cfg.Progress = func(_ window.Window, o Outcome) { h.outcome = append(h.outcome, o) }
	h.driver = NewWindowed(fetcher, h.writer, cfg, logger).
		WithPacer(ratelimit.NewPacer(ratelimit.ScopeWindow, time.Second, logger).
			WithSleep(func(context.Context, time.Duration) error {
				h.pauses++
				return nil
			}))
	return h
}

func (h *harness) artifacts(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func params(t *testing.T, start, end string, batchDays int) Params {
	t.Helper()
	s, err := window.ParseDate(start)
	require.NoError(t, err)
	e, err := window.ParseDate(end)
	require.NoError(t, err)
	return Params{Start: s, End: e, BatchDays: batchDays}
}

func TestWindowed_WritesOneArtifactPerWindow(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		return rows(3, req.Window), nil
	}, WindowedConfig{Source: "requests"})

	summary, err := h.driver.Run(context.Background(), params(t, "2024-01-01", "2024-01-10", 3))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 9, summary.Rows)
	assert.True(t, summary.OK())
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{
		"311_data_2024-01-01_to_2024-01-04.csv",
		"311_data_2024-01-04_to_2024-01-07.csv",
		"311_data_2024-01-07_to_2024-01-10.csv",
	}, h.artifacts(t))
	assert.Equal(t, 2, h.pauses, "pause between fetched windows only")
	assert.Equal(t, []Outcome{OutcomeProcessed, OutcomeProcessed, OutcomeProcessed}, h.outcome)
}

func TestWindowed_SecondRunSkipsEverything(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		return rows(2, req.Window), nil
	}, WindowedConfig{})

	p := params(t, "2024-01-01", "2024-01-10", 3)
	_, err := h.driver.Run(context.Background(), p)
	require.NoError(t, err)

	before, err := os.Stat(filepath.Join(h.dir, "311_data_2024-01-01_to_2024-01-04.csv"))
	require.NoError(t, err)

	callsAfterFirst := h.source.calls
	pausesAfterFirst := h.pauses

	summary, err := h.driver.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, callsAfterFirst, h.source.calls, "no requests for skipped windows")
	assert.Equal(t, pausesAfterFirst, h.pauses, "no pauses when nothing is fetched")

	after, err := os.Stat(filepath.Join(h.dir, "311_data_2024-01-01_to_2024-01-04.csv"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestWindowed_MidWindowFailureIsIsolated(t *testing.T) {
	failing := "2024-01-04_to_2024-01-07"
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		if req.Window.String() == failing {
			if req.Offset == 0 {
				return rows(10, req.Window), nil
			}
			return nil, errUpstream
		}
		return rows(4, req.Window), nil
	}, WindowedConfig{})

	summary, err := h.driver.Run(context.Background(), params(t, "2024-01-01", "2024-01-10", 3))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.FailedWindows, 1)
	assert.Equal(t, failing, summary.FailedWindows[0].String())
	assert.Equal(t, failing, summary.FailedList())
	assert.NotContains(t, h.artifacts(t), "311_data_"+failing+".csv")
	assert.Contains(t, h.artifacts(t), "311_data_2024-01-07_to_2024-01-10.csv")
	assert.Equal(t, []Outcome{OutcomeProcessed, OutcomeFailed, OutcomeProcessed}, h.outcome)
}

func TestWindowed_WritePartial(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		if req.Offset == 0 {
			return rows(10, req.Window), nil
		}
		return nil, errUpstream
	}, WindowedConfig{WritePartial: true})

	summary, err := h.driver.Run(context.Background(), params(t, "2024-01-01", "2024-01-04", 3))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"311_data_2024-01-01_to_2024-01-04.csv"}, h.artifacts(t))

	data, err := os.ReadFile(filepath.Join(h.dir, "311_data_2024-01-01_to_2024-01-04.csv"))
	require.NoError(t, err)
	assert.Equal(t, 11, bytes.Count(data, []byte("\n")), "header plus the first page")
}

func TestWindowed_EmptyWindowWritesNothing(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		return nil, nil
	}, WindowedConfig{})

	summary, err := h.driver.Run(context.Background(), params(t, "2024-01-01", "2024-01-04", 3))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Empty)
	assert.Empty(t, h.artifacts(t))
	assert.Contains(t, h.logs.String(), "No data for window")
}

func TestWindowed_InvalidRange(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		return nil, nil
	}, WindowedConfig{})

	_, err := h.driver.Run(context.Background(), params(t, "2024-02-01", "2024-01-01", 3))

	var rangeErr *window.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
	assert.Zero(t, h.source.calls)
}

func TestWindowed_CancelledContext(t *testing.T) {
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		return rows(1, req.Window), nil
	}, WindowedConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.driver.Run(ctx, params(t, "2024-01-01", "2024-01-10", 3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, h.source.calls)
}

type recordingMirror struct {
	paths []string
	err   error
}

func (m *recordingMirror) Mirror(_ context.Context, path string) error {
	m.paths = append(m.paths, path)
	return m.err
}

func TestWindowed_MirrorsWrittenArtifacts(t *testing.T) {
	m := &recordingMirror{err: errors.New("bucket unreachable")}
	h := newHarness(t, func(req pagination.FetchRequest) ([]record.Row, error) {
		if req.Window.Final {
			return nil, nil
		}
		return rows(1, req.Window), nil
	}, WindowedConfig{Mirror: m})

	summary, err := h.driver.Run(context.Background(), params(t, "2024-01-01", "2024-01-10", 3))
	require.NoError(t, err)

	// Mirror failures do not fail the window.
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Empty)
	assert.Len(t, m.paths, 2)
	assert.Contains(t, h.logs.String(), "Mirroring artifact failed")
}
