// Package socrata queries a Socrata Open Data (SODA) dataset one page at a
// time, filtered to a date window and ordered by a timestamp column.
package socrata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/city-data-fetch/pkg/pagination"
	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
)

// timestampLayout is the floating timestamp format SoQL compares against.
const timestampLayout = "2006-01-02T15:04:05"

// Defaults for the NYC 311 service request dataset.
const (
	DefaultDomain    = "data.cityofnewyork.us"
	DefaultDatasetID = "erm2-nwe9"
	DefaultDateField = "created_date"
)

// DefaultColumns are the 311 columns selected when none are configured.
var DefaultColumns = []string{
	"unique_key",
	"created_date",
	"closed_date",
	"agency",
	"complaint_type",
	"descriptor",
	"status",
	"borough",
	"latitude",
	"longitude",
}

// Getter performs a GET and returns the body of a successful response.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
}

// Config describes the dataset to query.
type Config struct {
	// BaseURL overrides "https://<Domain>" (for testing)
	BaseURL   string
	Domain    string
	DatasetID string
	AppToken  string
	Columns   []string
	// DateField is both the window filter and the sort key
	DateField string
}

// Source implements pagination.PageSource for one dataset.
type Source struct {
	getter Getter
	config Config
}

var _ pagination.PageSource = (*Source)(nil)

// NewSource creates a dataset source.
func NewSource(getter Getter, cfg Config) (*Source, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.DatasetID == "" {
		return nil, fmt.Errorf("dataset id is required")
	}
	if cfg.DateField == "" {
		cfg.DateField = DefaultDateField
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Domain
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Source{getter: getter, config: cfg}, nil
}

// Columns returns the selected columns in output order.
func (s *Source) Columns() []string {
	return s.config.Columns
}

// FetchPage requests one page of the window.
func (s *Source) FetchPage(ctx context.Context, req pagination.FetchRequest) ([]record.Row, error) {
	header := http.Header{}
	if s.config.AppToken != "" {
		header.Set("X-App-Token", s.config.AppToken)
	}

	body, err := s.getter.Get(ctx, s.PageURL(req), header)
	if err != nil {
		return nil, err
	}

	return decodeRows(body)
}

// PageURL builds the SODA resource URL for one page.
func (s *Source) PageURL(req pagination.FetchRequest) string {
	q := url.Values{}
	q.Set("$select", strings.Join(s.config.Columns, ","))
	q.Set("$where", WhereClause(s.config.DateField, req.Window))
	q.Set("$order", s.config.DateField+" ASC")
	q.Set("$limit", strconv.Itoa(req.PageSize))
	q.Set("$offset", strconv.Itoa(req.Offset))

	return fmt.Sprintf("%s/resource/%s.json?%s", s.config.BaseURL, s.config.DatasetID, q.Encode())
}

// WhereClause filters field to the window: start inclusive, end exclusive,
// except a final window which also includes its whole end date.
func WhereClause(field string, w window.Window) string {
	upper := w.End
	if w.Final {
		upper = upper.AddDate(0, 0, 1)
	}
	return fmt.Sprintf("%s >= '%s' AND %s < '%s'",
		field, w.Start.Format(timestampLayout),
		field, upper.Format(timestampLayout))
}

func decodeRows(body []byte) ([]record.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []record.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}
