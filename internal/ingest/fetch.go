package ingest

import (
	"context"
	"time"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/metrics"
	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/parseutil"
)

const (
	acceptHTML = "text/html,application/xhtml+xml"
	acceptText = "text/plain, */*"
)

// FetchResult is one downloaded and decoded upstream document.
type FetchResult struct {
	URL        string
	StatusCode int
	Bytes      int
	Text       string
	FetchedAt  time.Time
}

// fetchDocument downloads rawURL through sess and decodes the body. Transport
// failures and non-2xx statuses come back as *NetworkError or *HTTPError.
func fetchDocument(ctx context.Context, sess *httputil.Session, src models.SourceType, rawURL, accept string) (*FetchResult, error) {
	start := time.Now()
	resp, err := sess.Get(ctx, rawURL, accept)
	metrics.FetchLatency.WithLabelValues(src.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchTotal.WithLabelValues(src.String(), "error").Inc()
		return nil, classifyTransport(rawURL, err)
	}
	if err := checkStatus(resp); err != nil {
		metrics.FetchTotal.WithLabelValues(src.String(), "http_error").Inc()
		return nil, err
	}
	metrics.FetchTotal.WithLabelValues(src.String(), "ok").Inc()

	return &FetchResult{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Bytes:      len(resp.Body),
		Text:       parseutil.DecodeText(resp.Body, resp.Header.Get("Content-Type")),
		FetchedAt:  time.Now(),
	}, nil
}
