package resilience_test

import (
	"errors"
	"testing"

	"github.com/prilive-com/tgwire/internal/resilience"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestNewBreaker_TripsOnFailureRatio(t *testing.T) {
	var transitions []string
	cfg := resilience.DefaultBreakerConfig("test")
	cfg.OnStateChange = func(name, from, to string) {
		transitions = append(transitions, from+"->"+to)
	}
	cb := resilience.NewBreaker[int](cfg)

	for range 3 {
		_, _ = cb.Execute(func() (int, error) { return 0, errors.New("boom") })
	}

	assert.True(t, resilience.IsOpen(cb))
	assert.Equal(t, []string{"closed->open"}, transitions)

	_, err := cb.Execute(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestNewBreaker_IsSuccessfulExcludesErrors(t *testing.T) {
	ignored := errors.New("client error")
	cfg := resilience.DefaultBreakerConfig("test")
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ignored) }
	cb := resilience.NewBreaker[int](cfg)

	for range 10 {
		_, _ = cb.Execute(func() (int, error) { return 0, ignored })
	}

	assert.False(t, resilience.IsOpen(cb))
}

func TestNewBreaker_BelowMinRequestsStaysClosed(t *testing.T) {
	cb := resilience.NewBreaker[int](resilience.DefaultBreakerConfig("test"))

	for range 2 {
		_, _ = cb.Execute(func() (int, error) { return 0, errors.New("boom") })
	}

	assert.False(t, resilience.IsOpen(cb))
}
