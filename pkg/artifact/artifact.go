// Package artifact persists fetched batches as write-once CSV files whose
// names encode the source and the covered date range.
package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	artifactsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_artifacts_written_total",
		Help: "Total artifacts written by source",
	}, []string{"source"})

	artifactRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_artifact_rows_total",
		Help: "Total rows written to artifacts by source",
	}, []string{"source"})
)

// ErrExists is returned when writing would replace an existing artifact.
var ErrExists = errors.New("artifact already exists")

// WriteError reports a failure to persist an artifact.
type WriteError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write artifact %s: %v", e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Artifact describes the outcome of a write.
type Artifact struct {
	Path    string
	Rows    int
	Written bool
}

// Writer writes one CSV artifact per window for a single source.
type Writer struct {
	dir     string
	prefix  string
	columns []string
	logger  zerolog.Logger
}

// NewWriter creates a writer storing files as <dir>/<prefix>_<start>_to_<end>.csv
// with a header row in the given column order.
func NewWriter(dir, prefix string, columns []string, logger zerolog.Logger) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if prefix == "" {
		return nil, fmt.Errorf("source prefix is required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}

	return &Writer{
		dir:     dir,
		prefix:  prefix,
		columns: columns,
		logger:  logger,
	}, nil
}

// Path returns the deterministic artifact path for w.
func (wr *Writer) Path(w window.Window) string {
	return filepath.Join(wr.dir, fmt.Sprintf("%s_%s.csv", wr.prefix, w))
}

// Exists reports whether the artifact for w is already present.
func (wr *Writer) Exists(w window.Window) (bool, error) {
	_, err := os.Stat(wr.Path(w))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat artifact: %w", err)
	}
}

// Write persists batch as the artifact for w. An empty batch writes nothing.
// An existing artifact is never modified; the write fails with ErrExists.
func (wr *Writer) Write(w window.Window, batch record.Batch) (Artifact, error) {
	path := wr.Path(w)
	if batch.Empty() {
		wr.logger.Info().Str("window", w.String()).Msg("No data for window - nothing written")
		return Artifact{Path: path}, nil
	}

	if err := os.MkdirAll(wr.dir, 0o755); err != nil {
		return Artifact{}, &WriteError{Path: path, Err: err}
	}

	// O_EXCL keeps artifacts write-once even if a caller skipped Exists.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = ErrExists
		}
		return Artifact{}, &WriteError{Path: path, Err: err}
	}

	if err := wr.encode(f, batch); err != nil {
		f.Close()
		// Drop the partial file so the window is not mistaken for done.
		os.Remove(path)
		return Artifact{}, &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, &WriteError{Path: path, Err: err}
	}

	artifactsWrittenTotal.WithLabelValues(wr.prefix).Inc()
	artifactRowsTotal.WithLabelValues(wr.prefix).Add(float64(batch.Len()))

	wr.logger.Info().
		Str("path", path).
		Int("rows", batch.Len()).
		Msg("Saved artifact")

	return Artifact{Path: path, Rows: batch.Len(), Written: true}, nil
}

// Remove deletes the artifact for w. Only callers that decided to re-fetch
// use it; Write never removes anything.
func (wr *Writer) Remove(w window.Window) error {
	if err := os.Remove(wr.Path(w)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

func (wr *Writer) encode(f *os.File, batch record.Batch) error {
	cw := csv.NewWriter(f)
	if err := cw.Write(wr.columns); err != nil {
		return err
	}

	line := make([]string, len(wr.columns))
	for _, row := range batch {
		for i, col := range wr.columns {
			line[i] = row.Cell(col)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
