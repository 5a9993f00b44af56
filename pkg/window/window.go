// Package window splits a date range into fixed-size fetch windows.
package window

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in queries and artifact names.
const DateLayout = "2006-01-02"

// Window is a contiguous date sub-range [Start, End).
// The last window of a plan has Final set and is treated as closed at End.
type Window struct {
	Start time.Time
	End   time.Time
	Final bool
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// String renders the window as "2024-01-01_to_2024-01-31".
func (w Window) String() string {
	return w.Start.Format(DateLayout) + "_to_" + w.End.Format(DateLayout)
}

// InvalidRangeError is returned when a plan is requested for an empty or
// inverted range, or with a non-positive batch size.
type InvalidRangeError struct {
	Start     time.Time
	End       time.Time
	BatchDays int
}

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	if e.BatchDays < 1 {
		return fmt.Sprintf("invalid batch size %d days (must be >= 1)", e.BatchDays)
	}
	return fmt.Sprintf("invalid date range: start %s is not before end %s",
		e.Start.Format(DateLayout), e.End.Format(DateLayout))
}

// Plan divides [start, end) into windows of at most batchDays days.
// Windows are ordered, contiguous and non-overlapping; the last one may be shorter.
func Plan(start, end time.Time, batchDays int) ([]Window, error) {
	start, end = Date(start), Date(end)
	if batchDays < 1 || !start.Before(end) {
		return nil, &InvalidRangeError{Start: start, End: end, BatchDays: batchDays}
	}

	var windows []Window
	for cursor := start; cursor.Before(end); {
		next := cursor.AddDate(0, 0, batchDays)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next
	}
	windows[len(windows)-1].Final = true

	return windows, nil
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Date truncates t to midnight UTC of its calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
