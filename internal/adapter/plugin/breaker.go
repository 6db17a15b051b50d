package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"lattice/internal/domain"
	"lattice/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// breaker guards calls to one agent backend. When the backend fails
// repeatedly the circuit opens and turns fail fast with
// domain.ErrAgentUnavailable. A nil breaker runs calls directly.
type breaker struct {
	cb *gobreaker.CircuitBreaker[*domain.RunResult]
}

func newBreaker(agentID string, cfg config.CircuitBreakerConfig, log *slog.Logger) *breaker {
	if !cfg.Enabled {
		return nil
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return &breaker{cb: gobreaker.NewCircuitBreaker[*domain.RunResult](gobreaker.Settings{
		Name:        "agent:" + agentID,
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Rejections by the caller's own context do not count against the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerCancelled)
		},
	})}
}

// errCallerCancelled marks failures caused by the caller's context.
var errCallerCancelled = errors.New("caller cancelled")

func (b *breaker) execute(name string, fn func() (*domain.RunResult, error)) (*domain.RunResult, error) {
	if b == nil {
		return fn()
	}
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: agent %q circuit open: %w", domain.ErrAgentUnavailable, name, err)
	}
	return res, err
}

func (b *breaker) state() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}
