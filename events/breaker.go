package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Breaker stops calling a failing broker for a while instead of stalling
// every checkout on it.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(next Publisher, name string, log zerolog.Logger) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("publisher breaker state changed")
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

func (b *Breaker) PublishJSON(ctx context.Context, routingKey string, v any) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.PublishJSON(ctx, routingKey, v)
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Close() error { return b.next.Close() }
