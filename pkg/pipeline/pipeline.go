// Package pipeline drives fetch units from planning to persisted artifacts.
//
// Two drivers are provided:
//   - Windowed splits the range into windows and processes them one at a
//     time: skip when the artifact exists, otherwise fetch every page and
//     write the batch.
//   - SingleShot fetches the whole range in one request and consults an
//     overwrite policy when the artifact is already present.
//
// Failures are isolated per window. A failed window is recorded in the
// Summary and never aborts the run; only an invalid range is fatal.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/artifact"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_windows_total",
		Help: "Total windows handled by source and outcome",
	}, []string{"source", "outcome"})

	windowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citydata_window_duration_seconds",
		Help:    "Time spent fetching and writing one window",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"source"})

	mirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citydata_mirror_errors_total",
		Help: "Total artifacts that could not be mirrored",
	})
)

// Outcome is the result of handling one window.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
)

// Params is the range of one run.
type Params struct {
	Start     time.Time
	End       time.Time
	BatchDays int
}

// Summary counts window outcomes of a run.
type Summary struct {
	RunID         string
	Total         int
	Processed     int
	Skipped       int
	Empty         int
	Failed        int
	Rows          int
	FailedWindows []window.Window
	Duration      time.Duration
}

// OK reports whether no window failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// FailedList renders the failed windows for log output.
func (s Summary) FailedList() string {
	names := make([]string, len(s.FailedWindows))
	for i, w := range s.FailedWindows {
		names[i] = w.String()
	}
	return strings.Join(names, ", ")
}

func (s *Summary) add(w window.Window, outcome Outcome, rows int) {
	switch outcome {
	case OutcomeProcessed:
		s.Processed++
		s.Rows += rows
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeEmpty:
		s.Empty++
	case OutcomeFailed:
		s.Failed++
		s.FailedWindows = append(s.FailedWindows, w)
	}
}

// ArtifactStore is the persistence used by the drivers.
type ArtifactStore interface {
	Path(w window.Window) string
	Exists(w window.Window) (bool, error)
	Write(w window.Window, batch record.Batch) (artifact.Artifact, error)
	Remove(w window.Window) error
}

// Mirror copies a written artifact elsewhere.
type Mirror interface {
	Mirror(ctx context.Context, path string) error
}

// ProgressFunc is called once per handled window.
type ProgressFunc func(w window.Window, outcome Outcome)
