package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/fixtures"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/sensor"
	"github.com/lox/laketemp/internal/source"
)

type fakeFetcher struct {
	mu    sync.Mutex
	err   error
	temp  float64
	calls int
}

func (f *fakeFetcher) ID() string                { return "fake" }
func (f *fakeFetcher) Source() models.SourceType { return models.SourceSalzburgOGD }
func (f *fakeFetcher) LookupKey(lake config.LakeConfig) string {
	return lake.EntityID
}

func (f *fakeFetcher) Fetch(ctx context.Context, sess *httputil.Session, members []config.LakeConfig) (dataset.FetchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return dataset.FetchOutput{}, f.err
	}
	out := dataset.FetchOutput{Readings: map[string]models.TemperatureReading{}}
	for _, m := range members {
		r, _ := models.NewTemperatureReading(time.Now().Add(-time.Minute), f.temp, models.SourceSalzburgOGD)
		out.Readings[m.EntityID] = r
	}
	return out, nil
}

func newCoordinator(t *testing.T, f dataset.Fetcher) *dataset.Coordinator {
	t.Helper()
	c := dataset.NewCoordinator(f, func(ua string) *httputil.Session {
		return httputil.NewSession(httputil.SessionOptions{UserAgent: ua})
	}, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func testLake(entityID string, scan int) config.LakeConfig {
	return config.LakeConfig{
		Name:         entityID,
		EntityID:     entityID,
		ScanInterval: scan,
		TimeoutHours: 24,
		UserAgent:    "LakeTempTest/1.0 (scheduler)",
		Source:       config.Source{Type: models.SourceSalzburgOGD},
	}
}

func TestRunOnce_UpdatesDatasetSensors(t *testing.T) {
	f := &fakeFetcher{temp: 23.1}
	c := newCoordinator(t, f)

	lake := testLake("mattsee", 600)
	sn := sensor.New(lake, source.NewDatasetSource(lake, c), zerolog.Nop())

	s := New(zerolog.Nop())
	s.AddDataset(c, []*sensor.Sensor{sn})
	s.RunOnce(context.Background())

	st := sn.State()
	if st.Value == nil || *st.Value != 23.1 {
		t.Fatalf("state = %+v, want 23.1", st)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}
}

func TestRunOnce_UpdatesPerLakeSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtures.GKDBayernHTML()))
	}))
	defer srv.Close()

	lake := testLake("chiemsee", 600)
	lake.URL = srv.URL + "/messwerte"
	lake.Source.Type = models.SourceGKDBayern
	sess := httputil.NewSession(httputil.SessionOptions{UserAgent: lake.UserAgent})
	src := source.NewGKDSource(lake, sess, true, zerolog.Nop())
	defer src.Close()
	sn := sensor.New(lake, src, zerolog.Nop())

	s := New(zerolog.Nop())
	s.AddSensor(sn, lake.ScanDuration())
	s.RunOnce(context.Background())

	if err := sn.Err(); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if sn.State().Attributes["data_timestamp"] == "" {
		t.Error("expected a data timestamp after the update")
	}
	if d, ok := s.Interval("lake.chiemsee"); !ok || d != 10*time.Minute {
		t.Errorf("interval = %s, %v", d, ok)
	}
}

func TestScheduler_FollowsMembership(t *testing.T) {
	f := &fakeFetcher{temp: 20}
	c := newCoordinator(t, f)
	lake := testLake("mattsee", 600)
	c.Register(lake)

	s := New(zerolog.Nop())
	s.AddDataset(c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	if d, _ := s.Interval("dataset.fake"); d != 10*time.Minute {
		t.Fatalf("initial interval = %s", d)
	}
	c.Register(testLake("fuschlsee", 120))
	if d, _ := s.Interval("dataset.fake"); d != 2*time.Minute {
		t.Errorf("interval after faster member = %s, want 2m", d)
	}
	c.Unregister("fuschlsee")
	if d, _ := s.Interval("dataset.fake"); d != 10*time.Minute {
		t.Errorf("interval after unregister = %s, want 10m", d)
	}
}

func TestScheduler_HonoursRetryAfter(t *testing.T) {
	f := &fakeFetcher{err: &ingest.HTTPError{StatusCode: http.StatusTooManyRequests, RetryAfter: "120"}}
	c := newCoordinator(t, f)
	c.Register(testLake("mattsee", 60))

	s := New(zerolog.Nop())
	s.AddDataset(c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d, _ := s.Interval("dataset.fake"); d >= 120*time.Second {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	d, _ := s.Interval("dataset.fake")
	t.Errorf("interval = %s, want at least 2m after Retry-After", d)
}

type slowFetcher struct {
	started  chan struct{}
	once     sync.Once
	mu       sync.Mutex
	finished bool
}

func (f *slowFetcher) ID() string                { return "slow" }
func (f *slowFetcher) Source() models.SourceType { return models.SourceSalzburgOGD }
func (f *slowFetcher) LookupKey(lake config.LakeConfig) string {
	return lake.EntityID
}

func (f *slowFetcher) Fetch(ctx context.Context, sess *httputil.Session, members []config.LakeConfig) (dataset.FetchOutput, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
	}
	f.mu.Lock()
	f.finished = true
	f.mu.Unlock()
	return dataset.FetchOutput{Readings: map[string]models.TemperatureReading{}}, nil
}

func TestScheduler_StopWaitsForInitialRun(t *testing.T) {
	f := &slowFetcher{started: make(chan struct{})}
	c := newCoordinator(t, f)
	lake := testLake("mattsee", 600)
	sn := sensor.New(lake, source.NewDatasetSource(lake, c), zerolog.Nop())

	s := New(zerolog.Nop())
	s.AddDataset(c, []*sensor.Sensor{sn})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run never started")
	}
	s.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished {
		t.Error("Stop returned before the initial run finished")
	}
}
