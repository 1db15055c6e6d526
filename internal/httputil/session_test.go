package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

func TestSession_SendsUserAgentAndAccept(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := NewSession(SessionOptions{UserAgent: "LakeTempTest/1.0"})
	defer s.Close()

	resp, err := s.Get(context.Background(), srv.URL, "text/plain")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "ok" || resp.StatusCode != http.StatusOK {
		t.Errorf("resp = %d %q", resp.StatusCode, resp.Body)
	}
	if gotUA != "LakeTempTest/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "text/plain" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestSession_DefaultUserAgent(t *testing.T) {
	s := NewSession(SessionOptions{})
	if s.UserAgent() != DefaultUserAgent {
		t.Errorf("UserAgent = %q", s.UserAgent())
	}
}

func TestSession_OwnedCloseIsIdempotent(t *testing.T) {
	s := NewSession(SessionOptions{})
	_ = s.Client()
	s.Close()
	s.Close()
	if !s.Closed() {
		t.Fatal("owned session should report closed")
	}
	if s.Client() == nil {
		t.Fatal("owned session should lazily recreate its client")
	}
	if s.Closed() {
		t.Error("recreated session should not report closed")
	}
}

func TestSession_BorrowedNeverClosed(t *testing.T) {
	client := &http.Client{}
	s := BorrowSession(client, SessionOptions{})
	s.Close()
	if s.Closed() {
		t.Error("borrowed session must not be closed")
	}
	if s.Client() != client {
		t.Error("borrowed session must keep the caller's client")
	}
	if s.Owned() {
		t.Error("borrowed session reports owned")
	}
}

func TestSession_NonSuccessStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := BorrowSession(srv.Client(), SessionOptions{})
	resp, err := s.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "120" {
		t.Errorf("unexpected response %d %v", resp.StatusCode, resp.Header)
	}
}

func TestSession_RedirectLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/loop", http.StatusFound)
	}))
	defer srv.Close()

	s := NewSession(SessionOptions{})
	defer s.Close()
	_, err := s.Get(context.Background(), srv.URL, "")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
}

func TestSession_InvalidURL(t *testing.T) {
	s := NewSession(SessionOptions{})
	if _, err := s.Get(context.Background(), "not a url", ""); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
}

func TestSession_BreakerOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := BorrowSession(srv.Client(), SessionOptions{Breakers: NewBreakers(2, time.Minute, zerolog.Nop())})
	for i := 0; i < 2; i++ {
		resp, err := s.Get(context.Background(), srv.URL, "")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("attempt %d: status %d", i, resp.StatusCode)
		}
	}

	_, err := s.Get(context.Background(), srv.URL, "")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}
