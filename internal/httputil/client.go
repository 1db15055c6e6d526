package httputil

import (
	"errors"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 20 * time.Second
	MaxRedirects   = 5

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrTooManyRedirects is returned (wrapped in *url.Error) when a request is
// redirected more than MaxRedirects times.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrInvalidURL is returned (wrapped in *url.Error) for a URL without an
// http(s) scheme or host.
var ErrInvalidURL = errors.New("invalid url")

// NewClient returns an HTTP client with standard timeout configuration and a
// redirect cap.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}
