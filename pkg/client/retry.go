package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration: six attempts
// starting at 200ms and doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       6,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ForErrorClass returns the configuration adjusted for an error class.
// Rate limit responses back off five times longer than other failures.
func (rc RetryConfig) ForErrorClass(errorClass ErrorClass) RetryConfig {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.BackoffMultiplier < 1 {
		rc.BackoffMultiplier = 1
	}
	if errorClass == ErrorClassRateLimit {
		rc.InitialBackoff *= 5
	}
	if rc.MaxBackoff > 0 && rc.InitialBackoff > rc.MaxBackoff {
		rc.InitialBackoff = rc.MaxBackoff
	}
	return rc
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(rc.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= rc.BackoffMultiplier
		if rc.MaxBackoff > 0 && backoff >= float64(rc.MaxBackoff) {
			return rc.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// classify maps each failure to an error class, which decides whether and
// how long to wait before the next attempt.
func retryWithBackoff(ctx context.Context, base RetryConfig, fn func() error, classify func(error) ErrorClass) error {
	var lastErr error
	var errorClass ErrorClass
	config := base.ForErrorClass("")

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classify(err)
		config = base.ForErrorClass(errorClass)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		backoff := config.Backoff(attempt)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Err(lastErr).
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
