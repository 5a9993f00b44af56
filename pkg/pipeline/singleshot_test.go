package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Sternrassler/city-data-fetch/pkg/artifact"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRange struct {
	batch record.Batch
	err   error
	calls int
}

func (f *fakeRange) FetchRange(context.Context, window.Window) (record.Batch, error) {
	f.calls++
	return f.batch, f.err
}

func newWeatherWriter(t *testing.T) *artifact.Writer {
	t.Helper()
	wr, err := artifact.NewWriter(t.TempDir(), "weather_nyc", []string{"date", "rain_sum"}, zerolog.Nop())
	require.NoError(t, err)
	return wr
}

func weatherBatch(values ...string) record.Batch {
	b := make(record.Batch, len(values))
	for i, v := range values {
		b[i] = record.Row{"date": "2023-01-0" + string(rune('1'+i)), "rain_sum": v}
	}
	return b
}

func TestSingleShot_WritesWholeRange(t *testing.T) {
	wr := newWeatherWriter(t)
	src := &fakeRange{batch: weatherBatch("0.1", "0")}
	p := params(t, "2023-01-01", "2024-12-31", 1)

	summary, err := NewSingleShot(src, wr, SingleShotConfig{Source: "weather"}, zerolog.Nop()).
		Run(context.Background(), p.Start, p.End)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Rows)
	assert.FileExists(t, wr.Path(window.Window{Start: p.Start, End: p.End}))
	assert.True(t, strings.HasSuffix(wr.Path(window.Window{Start: p.Start, End: p.End}),
		"weather_nyc_2023-01-01_to_2024-12-31.csv"))
}

func TestSingleShot_OverwritePolicy(t *testing.T) {
	tests := []struct {
		name          string
		answer        string
		wantProcessed int
		wantContent   string
	}{
		{"declined", "n\n", 0, "old"},
		{"accepted", "y\n", 1, "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wr := newWeatherWriter(t)
			p := params(t, "2023-01-01", "2023-01-03", 1)
			w := window.Window{Start: p.Start, End: p.End}

			_, err := wr.Write(w, weatherBatch("old"))
			require.NoError(t, err)

			src := &fakeRange{batch: weatherBatch("new")}
			prompt := &bytes.Buffer{}
			driver := NewSingleShot(src, wr, SingleShotConfig{
				Policy: artifact.Prompt(strings.NewReader(tt.answer), prompt),
			}, zerolog.Nop())

			summary, err := driver.Run(context.Background(), p.Start, p.End)
			require.NoError(t, err)

			assert.Equal(t, tt.wantProcessed, summary.Processed)
			assert.Contains(t, prompt.String(), "re-download")

			data, err := os.ReadFile(wr.Path(w))
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.wantContent)
		})
	}
}

func TestSingleShot_FailedFetchKeepsOldArtifact(t *testing.T) {
	wr := newWeatherWriter(t)
	p := params(t, "2023-01-01", "2023-01-03", 1)
	w := window.Window{Start: p.Start, End: p.End}

	_, err := wr.Write(w, weatherBatch("old"))
	require.NoError(t, err)

	src := &fakeRange{err: errors.New("archive api error")}
	summary, err := NewSingleShot(src, wr, SingleShotConfig{Policy: artifact.OverwriteExisting}, zerolog.Nop()).
		Run(context.Background(), p.Start, p.End)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	data, err := os.ReadFile(wr.Path(w))
	require.NoError(t, err)
	assert.Contains(t, string(data), "old")
}

func TestSingleShot_DefaultPolicySkips(t *testing.T) {
	wr := newWeatherWriter(t)
	p := params(t, "2023-01-01", "2023-01-03", 1)

	_, err := wr.Write(window.Window{Start: p.Start, End: p.End}, weatherBatch("old"))
	require.NoError(t, err)

	src := &fakeRange{batch: weatherBatch("new")}
	summary, err := NewSingleShot(src, wr, SingleShotConfig{}, zerolog.Nop()).
		Run(context.Background(), p.Start, p.End)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, src.calls)
}

func TestSingleShot_InvalidRange(t *testing.T) {
	p := params(t, "2023-01-03", "2023-01-01", 1)
	_, err := NewSingleShot(&fakeRange{}, newWeatherWriter(t), SingleShotConfig{}, zerolog.Nop()).
		Run(context.Background(), p.Start, p.End)

	var rangeErr *window.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}
