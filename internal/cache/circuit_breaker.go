package cache

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type CircuitBreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures      uint32
	Timeout          time.Duration
	HalfOpenMaxCalls uint32
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "redis",
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// NewCircuitBreaker builds the breaker that guards every Redis round trip.
// Cache misses count as successes.
func NewCircuitBreaker(config *CircuitBreakerConfig, logger logrus.FieldLogger) *gobreaker.CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxCalls,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			}
		},
	})
}

// guard runs fn through the breaker and folds the breaker's own rejections
// into ErrCacheDown.
func guard(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCacheDown
	}
	return err
}
