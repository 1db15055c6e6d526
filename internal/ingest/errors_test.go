package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/models"
)

func TestFetchDocument_Classification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Gewässer;Datum"))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sess := newTestSession(t)
	ctx := context.Background()

	res, err := fetchDocument(ctx, sess, models.SourceSalzburgOGD, srv.URL+"/ok", acceptText)
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	if res.Text != "Gewässer;Datum" || res.Bytes != len("Gewässer;Datum") {
		t.Errorf("ok result = %+v", res)
	}

	_, err = fetchDocument(ctx, sess, models.SourceSalzburgOGD, srv.URL+"/busy", acceptText)
	if StatusCode(err) != http.StatusTooManyRequests || RetryAfter(err) != "120" {
		t.Errorf("busy: err = %v", err)
	}

	_, err = fetchDocument(ctx, sess, models.SourceSalzburgOGD, srv.URL+"/gone", acceptText)
	if StatusCode(err) != http.StatusNotFound {
		t.Errorf("gone: err = %v", err)
	}

	_, err = fetchDocument(ctx, sess, models.SourceSalzburgOGD, srv.URL+"/loop", acceptText)
	if !IsHTTP(err) || !errors.Is(err, httputil.ErrTooManyRedirects) {
		t.Errorf("loop: err = %v", err)
	}

	_, err = fetchDocument(ctx, sess, models.SourceSalzburgOGD, "ftp://example.test/file", acceptText)
	if !IsHTTP(err) || !errors.Is(err, httputil.ErrInvalidURL) {
		t.Errorf("invalid url: err = %v", err)
	}
}

func TestFetchDocument_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := fetchDocument(context.Background(), newTestSession(t), models.SourceHydroOOE, addr, acceptText)
	if !IsNetwork(err) {
		t.Fatalf("err = %v, want network error", err)
	}
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	base := newNoDataError(models.SourceHydroOOE, "no station with SANR %s", "1")
	wrapped := fmt.Errorf("refresh: %w", base)
	if !IsNoData(wrapped) || IsParse(wrapped) || IsNetwork(wrapped) {
		t.Errorf("predicates on %v", wrapped)
	}
	if StatusCode(wrapped) != 0 {
		t.Error("no data error carries no status")
	}
}
