package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/fixtures"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/lake/messwerte", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixtures.GKDBayernHTML()))
	})
	mux.HandleFunc("/ogd.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtures.SalzburgOGD()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRegistry(t *testing.T, srv *httptest.Server) *dataset.Registry {
	t.Helper()
	r := dataset.NewRegistry(dataset.RegistryOptions{
		Limiter:     httputil.LimiterOptions{MaxConcurrent: 2, MinDelay: time.Millisecond},
		SalzburgURL: srv.URL + "/ogd.txt",
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(r.Close)
	return r
}

func testLake(st models.SourceType, name, url string) config.LakeConfig {
	return config.LakeConfig{
		Name:         name,
		URL:          url,
		EntityID:     "lake_" + string(st),
		ScanInterval: 600,
		TimeoutHours: 24,
		UserAgent:    "LakeTempTest/1.0 (source)",
		Source:       config.Source{Type: st},
	}
}

func TestNew_GKDUsesDedicatedSession(t *testing.T) {
	srv := newServer(t)
	reg := newRegistry(t, srv)

	src, err := New(testLake(models.SourceGKDBayern, "Chiemsee", srv.URL+"/lake/messwerte"), reg, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	gkd, ok := src.(*GKDSource)
	if !ok {
		t.Fatalf("got %T, want *GKDSource", src)
	}

	r, err := src.FetchTemperature(context.Background())
	if err != nil {
		t.Fatalf("FetchTemperature: %v", err)
	}
	if r.TemperatureC() != 23.1 || r.Source() != models.SourceGKDBayern {
		t.Errorf("reading = %v from %s", r.TemperatureC(), r.Source())
	}
	if src.UpdateFrequency() != 10*time.Minute {
		t.Errorf("UpdateFrequency = %s", src.UpdateFrequency())
	}

	src.Close()
	if !gkd.session.Closed() {
		t.Error("dedicated session should be closed with the source")
	}
}

func TestNew_GKDBorrowedSessionStaysOpen(t *testing.T) {
	srv := newServer(t)
	reg := newRegistry(t, srv)
	shared := reg.SharedSession("LakeTempTest/1.0 (shared)")

	src, err := New(testLake(models.SourceGKDBayern, "Chiemsee", srv.URL+"/lake/messwerte"), reg, Options{Session: shared, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.FetchTemperature(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.Close()
	if shared.Closed() {
		t.Error("a borrowed session must not be closed by the source")
	}
}

func TestNew_DatasetSource(t *testing.T) {
	srv := newServer(t)
	reg := newRegistry(t, srv)

	lake := testLake(models.SourceSalzburgOGD, "Mattsee", "")
	src, err := New(lake, reg, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	ds, ok := src.(*DatasetSource)
	if !ok {
		t.Fatalf("got %T, want *DatasetSource", src)
	}
	if src.Type() != models.SourceSalzburgOGD {
		t.Errorf("Type = %s", src.Type())
	}

	if _, err := src.FetchTemperature(context.Background()); !ingest.IsNoData(err) {
		t.Fatalf("before refresh: err = %v, want no data", err)
	}

	if res := ds.Coordinator().Refresh(context.Background()); res.Outcome != dataset.OutcomeSuccess {
		t.Fatalf("refresh: %s %v", res.Outcome, res.Err)
	}
	r, err := src.FetchTemperature(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.TemperatureC() != 23.1 {
		t.Errorf("Mattsee = %v, want 23.1", r.TemperatureC())
	}
	if src.UpdateFrequency() != 10*time.Minute {
		t.Errorf("UpdateFrequency = %s", src.UpdateFrequency())
	}

	src.Close()
	if n := len(ds.Coordinator().Members()); n != 0 {
		t.Errorf("members after close = %d", n)
	}
}

func TestNew_SharesCoordinator(t *testing.T) {
	srv := newServer(t)
	reg := newRegistry(t, srv)

	a := testLake(models.SourceSalzburgOGD, "Mattsee", "")
	b := testLake(models.SourceSalzburgOGD, "Fuschlsee", "")
	b.EntityID = "fuschlsee"

	sa, err := New(a, reg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	sb, err := New(b, reg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sa.(*DatasetSource).Coordinator() != sb.(*DatasetSource).Coordinator() {
		t.Error("lakes of one dataset should share a coordinator")
	}
}

func TestNew_UnknownType(t *testing.T) {
	reg := dataset.NewRegistry(dataset.RegistryOptions{Logger: zerolog.Nop()})
	defer reg.Close()
	if _, err := New(testLake("ftp_export", "X", ""), reg, Options{}); err == nil {
		t.Error("expected error for unknown source type")
	}
}
