package httputil

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Breakers hands out one circuit breaker per host. A host that keeps failing
// at the transport level or with 5xx responses is short-circuited for a while
// instead of being hammered on every sensor refresh.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	failures uint32
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewBreakers trips a host's breaker after `failures` consecutive failures and
// keeps it open for `timeout`.
func NewBreakers(failures uint32, timeout time.Duration, logger zerolog.Logger) *Breakers {
	if failures == 0 {
		failures = 5
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Breakers{
		breakers: map[string]*gobreaker.CircuitBreaker{},
		failures: failures,
		timeout:  timeout,
		logger:   logger,
	}
}

// For returns the breaker for host, creating it on first use.
func (b *Breakers) For(host string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[host]
	if ok {
		return cb
	}
	threshold := b.failures
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	b.breakers[host] = cb
	return cb
}
