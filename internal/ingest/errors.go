package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/models"
)

// NetworkError covers DNS, connect and timeout failures and an open circuit
// breaker. Callers may retry on a later cycle.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response, a redirect loop or a malformed URL.
// StatusCode is zero when no response was received.
type HTTPError struct {
	URL        string
	StatusCode int
	RetryAfter string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http %d fetching %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("http error fetching %s: %v", e.URL, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ParseError means the payload no longer has the expected structure.
type ParseError struct {
	Source models.SourceType
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: parse: %s: %v", e.Source, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: parse: %s", e.Source, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoDataError means the payload was well formed but nothing matched: unknown
// station or lake, or every row was invalid.
type NoDataError struct {
	Source models.SourceType
	Msg    string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("%s: no data: %s", e.Source, e.Msg)
}

func newParseError(src models.SourceType, err error, format string, args ...any) *ParseError {
	return &ParseError{Source: src, Msg: fmt.Sprintf(format, args...), Err: err}
}

func newNoDataError(src models.SourceType, format string, args ...any) *NoDataError {
	return &NoDataError{Source: src, Msg: fmt.Sprintf(format, args...)}
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsHTTP(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}

func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// RetryAfter returns the raw Retry-After header carried by err, if any.
func RetryAfter(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return ""
}

// classifyTransport maps an error from httputil.Session.Get onto the taxonomy.
func classifyTransport(rawURL string, err error) error {
	switch {
	case errors.Is(err, httputil.ErrTooManyRedirects), errors.Is(err, httputil.ErrInvalidURL):
		return &HTTPError{URL: rawURL, Err: err}
	case errors.Is(err, context.Canceled):
		return err
	}
	return &NetworkError{URL: rawURL, Err: err}
}

// checkStatus turns a non-2xx response into an *HTTPError.
func checkStatus(resp *httputil.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
		Err:        errors.New(http.StatusText(resp.StatusCode)),
	}
}
