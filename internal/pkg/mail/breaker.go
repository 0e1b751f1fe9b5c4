package mail

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("mail delivery temporarily unavailable")

// BreakerMailer stops calling a failing relay after a run of consecutive
// failures and probes it again once timeout has passed.
type BreakerMailer struct {
	next    Mailer
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerMailer(next Mailer, threshold uint32, timeout time.Duration) *BreakerMailer {
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        "mail",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
	return &BreakerMailer{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (m *BreakerMailer) Send(ctx context.Context, msg Message) error {
	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

func (m *BreakerMailer) State() gobreaker.State {
	return m.breaker.State()
}
