// Package testutil provides mock upstream servers for city-data-fetch tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// boundsPattern extracts the two quoted timestamps of a window filter.
var boundsPattern = regexp.MustCompile(`'([^']+)'`)

// MockSocrata is a SODA resource endpoint backed by an in-memory dataset.
// Rows are filtered by the $where bounds on DateField, sorted by it and
// paged with $limit/$offset.
type MockSocrata struct {
	server *httptest.Server
	mu     sync.Mutex

	DateField string
	AppToken  string

	rows     []map[string]any
	failures map[int]int // offset -> status to return once

	// Tracking
	RequestCount int
	Offsets      []int
	LastQuery    map[string]string
}

// NewMockSocrata creates a mock dataset. When appToken is non-empty,
// requests without a matching X-App-Token header get 403.
func NewMockSocrata(dateField, appToken string) *MockSocrata {
	m := &MockSocrata{
		DateField: dateField,
		AppToken:  appToken,
		failures:  make(map[int]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockSocrata) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSocrata) Close() {
	m.server.Close()
}

// AddRows appends rows to the dataset.
func (m *MockSocrata) AddRows(rows ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
}

// AddDailyRows adds perDay rows for each date, timestamps spaced one second apart.
func (m *MockSocrata) AddDailyRows(perDay int, dates ...string) {
	var rows []map[string]any
	for _, d := range dates {
		for i := 0; i < perDay; i++ {
			rows = append(rows, map[string]any{
				"unique_key":     fmt.Sprintf("%s-%05d", d, i),
				m.DateField:      fmt.Sprintf("%sT%02d:%02d:%02d.000", d, i/3600%24, i/60%60, i%60),
				"complaint_type": "Noise - Residential",
				"borough":        "BROOKLYN",
			})
		}
	}
	m.AddRows(rows...)
}

// FailAt makes the next request for offset answer with status.
func (m *MockSocrata) FailAt(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[offset] = status
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSocrata) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

func (m *MockSocrata) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := r.URL.Query()
	m.RequestCount++
	m.LastQuery = map[string]string{}
	for k := range q {
		m.LastQuery[k] = q.Get(k)
	}

	if m.AppToken != "" && r.Header.Get("X-App-Token") != m.AppToken {
		writeJSON(w, http.StatusForbidden, map[string]any{"code": "permission_denied", "error": true})
		return
	}

	offset, _ := strconv.Atoi(q.Get("$offset"))
	limit, err := strconv.Atoi(q.Get("$limit"))
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid $limit"})
		return
	}
	m.Offsets = append(m.Offsets, offset)

	if status, ok := m.failures[offset]; ok {
		delete(m.failures, offset)
		writeJSON(w, status, map[string]any{"message": "injected failure"})
		return
	}

	bounds := boundsPattern.FindAllStringSubmatch(q.Get("$where"), -1)
	if len(bounds) != 2 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid $where"})
		return
	}
	lower, upper := bounds[0][1], bounds[1][1]

	var matched []map[string]any
	for _, row := range m.rows {
		ts, _ := row[m.DateField].(string)
		// ISO timestamps compare lexically; trim fractional seconds to the filter precision.
		key := strings.SplitN(ts, ".", 2)[0]
		if key >= lower && key < upper {
			matched = append(matched, project(row, q.Get("$select")))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return fmt.Sprint(matched[i][m.DateField]) < fmt.Sprint(matched[j][m.DateField])
	})

	page := []map[string]any{}
	if offset < len(matched) {
		page = matched[offset:min(offset+limit, len(matched))]
	}
	writeJSON(w, http.StatusOK, page)
}

func project(row map[string]any, selectList string) map[string]any {
	if selectList == "" {
		return row
	}
	out := make(map[string]any)
	for _, col := range strings.Split(selectList, ",") {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
