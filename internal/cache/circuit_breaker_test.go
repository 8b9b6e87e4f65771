package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
)

var errBoom = errors.New("boom")

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()

	if config.Name != "redis" {
		t.Errorf("Expected name redis, got %s", config.Name)
	}
	if config.MaxFailures != 5 {
		t.Errorf("Expected MaxFailures to be 5, got %d", config.MaxFailures)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout to be 30s, got %v", config.Timeout)
	}
	if config.HalfOpenMaxCalls != 1 {
		t.Errorf("Expected HalfOpenMaxCalls to be 1, got %d", config.HalfOpenMaxCalls)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "test",
		MaxFailures:      3,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
	}, logger)

	for i := 0; i < 3; i++ {
		if err := guard(cb, func() error { return errBoom }); err != errBoom {
			t.Fatalf("Expected errBoom on attempt %d, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("Expected breaker to be open, got %s", cb.State())
	}

	called := false
	err := guard(cb, func() error {
		called = true
		return nil
	})
	if err != ErrCacheDown {
		t.Errorf("Expected ErrCacheDown, got %v", err)
	}
	if called {
		t.Error("Expected open breaker to short-circuit the call")
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["to"] != "open" {
		t.Errorf("Expected a warning about the state change, got %+v", entry)
	}
}

func TestCircuitBreaker_MissesDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "test", MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1}, nil)

	for i := 0; i < 10; i++ {
		if err := guard(cb, func() error { return ErrCacheMiss }); err != ErrCacheMiss {
			t.Fatalf("Expected ErrCacheMiss, got %v", err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker to stay closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "test",
		MaxFailures:      1,
		Timeout:          20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	guard(cb, func() error { return errBoom })
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("Expected breaker to be open, got %s", cb.State())
	}

	time.Sleep(40 * time.Millisecond)
	if cb.State() != gobreaker.StateHalfOpen {
		t.Fatalf("Expected breaker to be half-open after the timeout, got %s", cb.State())
	}

	if err := guard(cb, func() error { return nil }); err != nil {
		t.Fatalf("Expected probe to succeed, got %v", err)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker to close after a successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "test", MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1}, nil)

	guard(cb, func() error { return errBoom })
	guard(cb, func() error { return nil })
	guard(cb, func() error { return errBoom })

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("Expected non-consecutive failures to keep the breaker closed, got %s", cb.State())
	}
}
