package mail

import (
	"context"
	"time"

	"github.com/buildmart/storefront/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the breaker around a dispatcher.
type BreakerSettings struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerDispatcher fails fast while the wrapped transport keeps failing.
type BreakerDispatcher struct {
	next Dispatcher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerDispatcher(next Dispatcher, s BreakerSettings, logg *logger.Logger) *BreakerDispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	name := s.Name
	if name == "" {
		name = "mail"
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "mail circuit breaker state changed")
		},
	})
	return &BreakerDispatcher{next: next, cb: cb}
}

// Send rejects malformed messages before they reach the breaker, so only
// transport failures count toward tripping it.
func (b *BreakerDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, msg)
	})
	return err
}

// State reports the breaker state for readiness output.
func (b *BreakerDispatcher) State() string {
	return b.cb.State().String()
}
