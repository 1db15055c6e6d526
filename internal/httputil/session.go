package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// SessionOptions configures a Session. Limiter and Breakers are shared
// process-wide and may be nil.
type SessionOptions struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   *DomainLimiter
	Breakers  *Breakers
	Logger    zerolog.Logger
}

// Session wraps an *http.Client with ownership semantics. An owned session
// creates its client lazily and releases it on Close; a borrowed session uses
// a caller-supplied client and never closes it.
type Session struct {
	mu     sync.Mutex
	client *http.Client
	owned  bool
	closed bool
	opts   SessionOptions
}

// NewSession returns an owned session. No client exists until the first request.
func NewSession(opts SessionOptions) *Session {
	return &Session{owned: true, opts: withDefaults(opts)}
}

// BorrowSession wraps a caller-managed client. Close is a no-op for it.
func BorrowSession(client *http.Client, opts SessionOptions) *Session {
	if client == nil {
		client = NewClient(opts.Timeout)
	}
	return &Session{client: client, owned: false, opts: withDefaults(opts)}
}

func withDefaults(opts SessionOptions) SessionOptions {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}

func (s *Session) Owned() bool       { return s.owned }
func (s *Session) UserAgent() string { return s.opts.UserAgent }

// Closed reports whether an owned session has been closed and not reopened.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Client returns the underlying client, creating it for owned sessions.
func (s *Session) Client() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.client = NewClient(s.opts.Timeout)
		s.closed = false
	}
	return s.client
}

// Close releases an owned client's idle connections. It is safe to call more
// than once and does nothing for borrowed sessions.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owned || s.closed {
		return
	}
	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	s.closed = true
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// errServerStatus marks a 5xx response as a breaker failure while still
// handing the response back to the caller.
var errServerStatus = errors.New("server error status")

// Get performs a rate-limited GET and reads the whole body. Any status code is
// returned as a Response; only transport failures, a tripped breaker or an
// invalid URL produce an error.
func (s *Session) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &url.Error{Op: "Get", URL: rawURL, Err: ErrInvalidURL}
	}
	host := strings.ToLower(u.Host)

	if s.opts.Limiter != nil {
		release, err := s.opts.Limiter.Acquire(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	do := func() (interface{}, error) {
		return s.do(ctx, rawURL, accept)
	}

	var result interface{}
	if s.opts.Breakers != nil {
		result, err = s.opts.Breakers.For(host).Execute(do)
	} else {
		result, err = do()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("circuit open for %s: %w", host, err)
	}
	if err != nil && !errors.Is(err, errServerStatus) {
		return nil, err
	}
	resp, _ := result.(*Response)
	if resp == nil {
		return nil, fmt.Errorf("get %s: empty response", rawURL)
	}
	return resp, nil
}

func (s *Session) do(ctx context.Context, rawURL, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if resp.StatusCode >= 500 {
		return out, errServerStatus
	}
	return out, nil
}
