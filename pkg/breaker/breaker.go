package breaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/igorsal/pr-sentinel/internal/interfaces"
)

// Settings tune a circuit breaker. Zero values fall back to the defaults
// used for upstream APIs.
type Settings struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	// IsSuccessful decides whether an error counts against the breaker.
	// Client-side errors (404, bad credentials) usually should not.
	IsSuccessful func(err error) bool
}

// Breaker wraps gobreaker and implements interfaces.CircuitBreaker
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a circuit breaker that logs and exports its state transitions
func New(s Settings, logger interfaces.Logger, metrics interfaces.MetricsCollector) *Breaker {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = 30 * time.Second
	}
	if s.Timeout == 0 {
		s.Timeout = 60 * time.Second
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	threshold := s.ConsecutiveFailures

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.SetGauge("circuit_breaker_state", float64(to), map[string]string{"name": name})
			metrics.IncrementCounter("circuit_breaker_events_total", map[string]string{"name": name, "to": to.String()})
		},
		IsSuccessful: s.IsSuccessful,
	})

	metrics.SetGauge("circuit_breaker_state", float64(gobreaker.StateClosed), map[string]string{"name": s.Name})

	return &Breaker{cb: cb}
}

func (b *Breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(req)
}

func (b *Breaker) Name() string {
	return b.cb.Name()
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsOpen reports whether calls are currently being rejected
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// IsRejection reports whether err came from the breaker refusing the call
func IsRejection(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
