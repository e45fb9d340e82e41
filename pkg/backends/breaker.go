package backends

import (
	"errors"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the per-backend circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker once reached. Zero disables tripping.
	ConsecutiveFailures uint32
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts are cleared.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

func newBreaker(name string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[*Response] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures == 0 {
				return false
			}
			trip := counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			if trip {
				logger.Warn().Str("backend", name).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("Opening circuit breaker.")
			}
			return trip
		},
		// Only transport failures and 5xx answers count against a backend.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var backendErr *types.BackendError
			return errors.As(err, &backendErr) && backendErr.Status < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("backend", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition.")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
