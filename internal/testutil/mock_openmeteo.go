package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockOpenMeteo serves daily archive responses generated from the request.
// Every variable gets the value of Values[name] for each day, or null.
type MockOpenMeteo struct {
	server *httptest.Server
	mu     sync.Mutex

	Values map[string]float64

	// Status overrides the response code when non-zero.
	Status int

	// Tracking
	RequestCount int
}

// NewMockOpenMeteo creates a mock archive endpoint.
func NewMockOpenMeteo() *MockOpenMeteo {
	m := &MockOpenMeteo{Values: map[string]float64{}}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the archive endpoint URL.
func (m *MockOpenMeteo) URL() string {
	return m.server.URL + "/v1/archive"
}

// Close shuts down the mock server.
func (m *MockOpenMeteo) Close() {
	m.server.Close()
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOpenMeteo) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

func (m *MockOpenMeteo) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount++

	if m.Status != 0 {
		writeJSON(w, m.Status, map[string]any{"error": true, "reason": "injected failure"})
		return
	}

	q := r.URL.Query()
	loc, err := time.LoadLocation(q.Get("timezone"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true, "reason": "invalid timezone"})
		return
	}
	start, err1 := time.ParseInLocation("2006-01-02", q.Get("start_date"), loc)
	end, err2 := time.ParseInLocation("2006-01-02", q.Get("end_date"), loc)
	if err1 != nil || err2 != nil || end.Before(start) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true, "reason": "invalid dates"})
		return
	}

	var times []int64
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		times = append(times, d.Unix())
	}

	daily := map[string]any{"time": times}
	for _, name := range strings.Split(q.Get("daily"), ",") {
		values := make([]*float64, len(times))
		if v, ok := m.Values[name]; ok {
			for i := range values {
				values[i] = &v
			}
		}
		daily[name] = values
	}

	lat, _ := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, _ := strconv.ParseFloat(q.Get("longitude"), 64)
	_, offset := start.Zone()
	writeJSON(w, http.StatusOK, map[string]any{
		"latitude":           lat,
		"longitude":          lon,
		"elevation":          10.0,
		"utc_offset_seconds": offset,
		"timezone":           loc.String(),
		"daily":              daily,
	})
}
