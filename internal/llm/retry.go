package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for provider API calls
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the backoff
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry
	Multiplier float64
}

// DefaultRetryConfig returns sensible defaults for provider retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// IsRetryableStatusCode reports whether an HTTP status warrants a retry.
// Auth and request-shape failures (4xx other than 429) never do.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableError reports whether a transport error warrants a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// connection refused, DNS failures and friends arrive as plain url errors
	return true
}

// backoffDelay computes the delay for the given attempt (0-based)
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
