// Package ratelimit spaces outbound requests: fixed politeness pauses between
// pages and windows, and an optional request-rate ceiling for the transport.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Pause scopes used as metric labels.
const (
	ScopePage   = "page"
	ScopeWindow = "window"
)

var (
	politenessPausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_politeness_pauses_total",
		Help: "Total politeness pauses by scope",
	}, []string{"scope"})

	politenessPauseSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_politeness_pause_seconds_total",
		Help: "Total time spent in politeness pauses by scope",
	}, []string{"scope"})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citydata_rate_limit_waits_total",
		Help: "Total number of requests delayed by the request rate ceiling",
	})
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer inserts a fixed delay between consecutive requests of one scope.
type Pacer struct {
	scope  string
	delay  time.Duration
	sleep  SleepFunc
	logger zerolog.Logger
}

// NewPacer creates a pacer for scope. A delay <= 0 disables pausing.
func NewPacer(scope string, delay time.Duration, logger zerolog.Logger) *Pacer {
	return &Pacer{
		scope:  scope,
		delay:  delay,
		sleep:  Sleep,
		logger: logger,
	}
}

// WithSleep replaces the sleep function (for testing).
func (p *Pacer) WithSleep(fn SleepFunc) *Pacer {
	p.sleep = fn
	return p
}

// Delay returns the configured pause.
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

// Pause waits the configured delay. It returns ctx.Err() if cancelled.
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	p.logger.Debug().
		Str("scope", p.scope).
		Dur("delay", p.delay).
		Msg("Politeness pause")

	politenessPausesTotal.WithLabelValues(p.scope).Inc()
	politenessPauseSeconds.WithLabelValues(p.scope).Add(p.delay.Seconds())

	return p.sleep(ctx, p.delay)
}

// Limiter caps the outbound request rate of a transport.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows perSecond requests per second with the given burst.
// perSecond <= 0 means unlimited.
func NewLimiter(perSecond float64, burst int) *Limiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if l.limiter.Tokens() < 1 {
		rateLimitWaitsTotal.Inc()
	}
	return l.limiter.Wait(ctx)
}
