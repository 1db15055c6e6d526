package httputil

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lox/laketemp/internal/metrics"
)

const (
	DefaultMaxConcurrent = 2
	DefaultMinDelay      = 250 * time.Millisecond
)

// LimiterOptions configures every per-domain state created by a DomainLimiter.
type LimiterOptions struct {
	MaxConcurrent int
	MinDelay      time.Duration
	Jitter        time.Duration
}

// DomainLimiter caps in-flight requests per host and spaces request starts so
// many sensors refreshing together do not burst against one server.
type DomainLimiter struct {
	mu     sync.Mutex
	states map[string]*domainState
	opts   LimiterOptions
}

func NewDomainLimiter(opts LimiterOptions) *DomainLimiter {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MinDelay < 0 {
		opts.MinDelay = 0
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	return &DomainLimiter{states: map[string]*domainState{}, opts: opts}
}

// DefaultLimiterOptions matches the defaults used for the public portals.
func DefaultLimiterOptions() LimiterOptions {
	return LimiterOptions{MaxConcurrent: DefaultMaxConcurrent, MinDelay: DefaultMinDelay}
}

type domainState struct {
	sem      chan struct{}
	mu       sync.Mutex
	next     time.Time
	minDelay time.Duration
	jitter   time.Duration
}

// Acquire blocks until a request to target may start. The returned release
// must be called once the request has finished; calling it twice is harmless.
func (l *DomainLimiter) Acquire(ctx context.Context, target string) (func(), error) {
	host := normalizeHost(target)
	st := l.state(host)
	started := time.Now()

	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() { once.Do(func() { <-st.sem }) }

	if err := st.space(ctx); err != nil {
		release()
		return nil, err
	}
	metrics.RateLimitWait.WithLabelValues(host).Observe(time.Since(started).Seconds())
	return release, nil
}

// InFlight reports the number of held slots for target's host.
func (l *DomainLimiter) InFlight(target string) int {
	return len(l.state(normalizeHost(target)).sem)
}

func (l *DomainLimiter) state(host string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[host]
	if !ok {
		st = &domainState{
			sem:      make(chan struct{}, l.opts.MaxConcurrent),
			minDelay: l.opts.MinDelay,
			jitter:   l.opts.Jitter,
		}
		l.states[host] = st
	}
	return st
}

// space serialises request starts: each start pushes the next permitted start
// out by the minimum delay plus jitter.
func (st *domainState) space(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	earliest := now
	if st.next.After(now) {
		earliest = st.next
	}
	if delay := earliest.Sub(now); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	var jitter time.Duration
	if st.jitter > 0 {
		jitter = time.Duration(rand.Int64N(int64(st.jitter) + 1))
	}
	startedAt := time.Now()
	if earliest.After(startedAt) {
		startedAt = earliest
	}
	st.next = startedAt.Add(st.minDelay + jitter)
	return nil
}

func normalizeHost(target string) string {
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return strings.ToLower(strings.TrimSpace(target))
}
