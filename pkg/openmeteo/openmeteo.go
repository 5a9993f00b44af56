// Package openmeteo fetches daily weather aggregates from the Open-Meteo
// historical archive in a single request covering the whole date range.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve on minimal images

	"github.com/Sternrassler/city-data-fetch/pkg/record"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
)

// DefaultBaseURL is the archive endpoint.
const DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// DateColumn is the first column of every weather row.
const DateColumn = "date"

// secondsPerDay is the interval of the daily series.
const secondsPerDay = 86400

// DefaultVariables are the daily aggregates requested when none are configured.
var DefaultVariables = []string{
	"temperature_2m_mean",
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"windspeed_10m_max",
	"weathercode",
}

// Getter performs a GET and returns the body of a successful response.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error)
}

// Config describes the location and variables to fetch.
type Config struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	Variables []string
}

// Client fetches daily series for one location.
type Client struct {
	getter   Getter
	config   Config
	location *time.Location
}

// Result is a converted archive response.
type Result struct {
	Rows      record.Batch
	Latitude  float64
	Longitude float64
	Elevation float64
	Timezone  string
}

// NewClient creates a client. The timezone must be a valid IANA name.
func NewClient(getter Getter, cfg Config) (*Client, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timezone == "" {
		return nil, fmt.Errorf("timezone is required")
	}
	if len(cfg.Variables) == 0 {
		cfg.Variables = DefaultVariables
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	return &Client{getter: getter, config: cfg, location: loc}, nil
}

// Columns returns the output column order: date, then each variable.
func (c *Client) Columns() []string {
	return append([]string{DateColumn}, c.config.Variables...)
}

// RequestURL builds the archive query for [start, end], both dates inclusive.
func (c *Client) RequestURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.config.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.config.Longitude, 'f', -1, 64))
	q.Set("start_date", start.Format(window.DateLayout))
	q.Set("end_date", end.Format(window.DateLayout))
	q.Set("daily", strings.Join(c.config.Variables, ","))
	q.Set("timezone", c.config.Timezone)
	q.Set("timeformat", "unixtime")

	return c.config.BaseURL + "?" + q.Encode()
}

// Fetch retrieves the whole range in one request and converts it to one row per day.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) (*Result, error) {
	body, err := c.getter.Get(ctx, c.RequestURL(start, end), nil)
	if err != nil {
		return nil, err
	}

	var resp archiveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode archive response: %w", err)
	}
	if resp.Error {
		return nil, fmt.Errorf("archive api error: %s", resp.Reason)
	}

	rows, err := c.convert(&resp)
	if err != nil {
		return nil, err
	}

	return &Result{
		Rows:      rows,
		Latitude:  resp.Latitude,
		Longitude: resp.Longitude,
		Elevation: resp.Elevation,
		Timezone:  resp.Timezone,
	}, nil
}

// convert aligns every variable array to the generated daily date sequence.
// FetchRange fetches the dates covered by w, both ends inclusive.
func (c *Client) FetchRange(ctx context.Context, w window.Window) (record.Batch, error) {
	res, err := c.Fetch(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func (c *Client) convert(resp *archiveResponse) (record.Batch, error) {
	series, err := resp.Daily.series()
	if err != nil {
		return nil, err
	}
	dates := series.Dates(c.location)

	rows := make(record.Batch, len(dates))
	for i, d := range dates {
		rows[i] = record.Row{DateColumn: d.Format(window.DateLayout)}
	}

	for _, name := range c.config.Variables {
		values, ok := resp.Daily.Values[name]
		if !ok {
			return nil, fmt.Errorf("variable %q missing from response", name)
		}
		if len(values) != len(dates) {
			return nil, fmt.Errorf("variable %q has %d values for %d days", name, len(values), len(dates))
		}
		for i, v := range values {
			rows[i][name] = v
		}
	}

	return rows, nil
}

// Series describes a dense daily sequence in unix seconds: [Start, End) by Interval.
type Series struct {
	Start    int64
	End      int64
	Interval int64
}

// Len returns the number of steps in the series, rounded to absorb the
// hour gained or lost when the range crosses a daylight saving change.
func (s Series) Len() int {
	if s.Interval <= 0 || s.End <= s.Start {
		return 0
	}
	return int((s.End - s.Start + s.Interval/2) / s.Interval)
}

// Dates returns the calendar date of each step in loc. Steps advance by
// calendar day in loc so daylight saving changes do not shift dates.
func (s Series) Dates(loc *time.Location) []time.Time {
	n := s.Len()
	first := time.Unix(s.Start, 0).In(loc)
	y, m, d := first.Date()

	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = time.Date(y, m, d+i, 0, 0, 0, 0, loc)
	}
	return dates
}

type archiveResponse struct {
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Elevation        float64    `json:"elevation"`
	UTCOffsetSeconds int        `json:"utc_offset_seconds"`
	Timezone         string     `json:"timezone"`
	Daily            dailyBlock `json:"daily"`
	Error            bool       `json:"error"`
	Reason           string     `json:"reason"`
}

// dailyBlock holds the "time" array plus one array per variable.
type dailyBlock struct {
	Time   []int64
	Values map[string][]*float64
}

func (d *dailyBlock) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Values = make(map[string][]*float64, len(raw))
	for key, msg := range raw {
		if key == "time" {
			if err := json.Unmarshal(msg, &d.Time); err != nil {
				return fmt.Errorf("daily.time: %w", err)
			}
			continue
		}
		var values []*float64
		if err := json.Unmarshal(msg, &values); err != nil {
			return fmt.Errorf("daily.%s: %w", key, err)
		}
		d.Values[key] = values
	}
	return nil
}

func (d *dailyBlock) series() (Series, error) {
	if len(d.Time) == 0 {
		return Series{}, fmt.Errorf("response has no daily time axis")
	}
	return Series{
		Start:    d.Time[0],
		End:      d.Time[len(d.Time)-1] + secondsPerDay,
		Interval: secondsPerDay,
	}, nil
}
