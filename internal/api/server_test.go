package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/api"
	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/sensor"
)

type fixedSource struct {
	reading models.TemperatureReading
	err     error
}

func (f *fixedSource) FetchTemperature(ctx context.Context) (models.TemperatureReading, error) {
	return f.reading, f.err
}
func (f *fixedSource) UpdateFrequency() time.Duration { return time.Minute }
func (f *fixedSource) Type() models.SourceType        { return models.SourceGKDBayern }
func (f *fixedSource) Close()                         {}

func newSensor(t *testing.T, entityID string, temp float64, fail bool) *sensor.Sensor {
	t.Helper()
	lake := config.LakeConfig{
		Name:         strings.ToUpper(entityID[:1]) + entityID[1:],
		URL:          "https://example.test/" + entityID,
		EntityID:     entityID,
		ScanInterval: 600,
		TimeoutHours: 24,
		UserAgent:    "LakeTempTest/1.0 (api)",
		Source:       config.Source{Type: models.SourceGKDBayern},
	}
	r, err := models.NewTemperatureReading(time.Now().Add(-10*time.Minute), temp, models.SourceGKDBayern)
	if err != nil {
		t.Fatal(err)
	}
	src := &fixedSource{reading: r}
	if fail {
		src.err = context.DeadlineExceeded
	}
	sn := sensor.New(lake, src, zerolog.Nop())
	_ = sn.Update(context.Background())
	return sn
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(":0", []*sensor.Sensor{
		newSensor(t, "chiemsee", 22.5, false),
		newSensor(t, "tegernsee", 0, true),
	}, nil, zerolog.Nop())

	w := get(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health api.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || len(health.Lakes) != 2 {
		t.Errorf("health = %+v", health)
	}
	if health.Lakes[1].Available || health.Lakes[1].Error == "" {
		t.Errorf("failed lake should report its error: %+v", health.Lakes[1])
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(":0", []*sensor.Sensor{newSensor(t, "tegernsee", 0, true)}, nil, zerolog.Nop())

	w := get(t, srv, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSensorsEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(":0", []*sensor.Sensor{
		newSensor(t, "chiemsee", 22.5, false),
		newSensor(t, "tegernsee", 0, true),
	}, nil, zerolog.Nop())

	w := get(t, srv, "/api/sensors")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var states []sensor.State
	if err := json.Unmarshal(w.Body.Bytes(), &states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states", len(states))
	}
	if states[0].Value == nil || *states[0].Value != 22.5 || !states[0].Available {
		t.Errorf("chiemsee = %+v", states[0])
	}
	if states[1].Value != nil || states[1].Available {
		t.Errorf("tegernsee should be null, got %+v", states[1])
	}
	if !strings.Contains(w.Body.String(), `"state":null`) {
		t.Error("unavailable value should encode as null")
	}
}

func TestSensorEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(":0", []*sensor.Sensor{newSensor(t, "chiemsee", 22.5, false)}, nil, zerolog.Nop())

	w := get(t, srv, "/api/sensors/chiemsee")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st sensor.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.EntityID != "chiemsee" || st.Attributes["lake_name"] != "Chiemsee" || st.Attributes["attribution"] != sensor.Attribution {
		t.Errorf("state = %+v", st)
	}

	if w := get(t, srv, "/api/sensors/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown entity: expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(":0", []*sensor.Sensor{newSensor(t, "chiemsee", 22.5, false)}, nil, zerolog.Nop())

	w := get(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `laketemp_lake_available{entity_id="chiemsee"} 1`) {
		t.Error("expected lake availability gauge in metrics output")
	}
}
