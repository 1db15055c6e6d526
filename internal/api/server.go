package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/sensor"
)

type Server struct {
	addr         string
	sensors      []*sensor.Sensor
	byID         map[string]*sensor.Sensor
	coordinators []*dataset.Coordinator
	logger       zerolog.Logger
}

func NewServer(addr string, sensors []*sensor.Sensor, coordinators []*dataset.Coordinator, logger zerolog.Logger) *Server {
	byID := make(map[string]*sensor.Sensor, len(sensors))
	for _, sn := range sensors {
		byID[sn.EntityID()] = sn
	}
	return &Server{
		addr:         addr,
		sensors:      sensors,
		byID:         byID,
		coordinators: coordinators,
		logger:       logutil.Component(logger, "api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/sensors/{entity_id}", s.handleSensor)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("starting server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Lakes    []LakeHealth    `json:"lakes"`
	Datasets []DatasetHealth `json:"datasets,omitempty"`
}

type LakeHealth struct {
	EntityID      string `json:"entity_id"`
	Available     bool   `json:"available"`
	DataTimestamp string `json:"data_timestamp,omitempty"`
	Error         string `json:"error,omitempty"`
}

type DatasetHealth struct {
	ID              string `json:"id"`
	Members         int    `json:"members"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// handleHealth reports degraded only when lakes are configured and none of
// them has a usable value.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status: "ok",
		Lakes:  make([]LakeHealth, 0, len(s.sensors)),
	}

	available := 0
	for _, sn := range s.sensors {
		st := sn.State()
		lh := LakeHealth{
			EntityID:      st.EntityID,
			Available:     st.Available,
			DataTimestamp: st.Attributes["data_timestamp"],
		}
		if err := sn.Err(); err != nil {
			lh.Error = err.Error()
		}
		if st.Available {
			available++
		}
		health.Lakes = append(health.Lakes, lh)
	}
	for _, c := range s.coordinators {
		health.Datasets = append(health.Datasets, DatasetHealth{
			ID:              c.ID(),
			Members:         len(c.Members()),
			IntervalSeconds: int(c.Interval() / time.Second),
		})
	}

	if len(s.sensors) > 0 && available == 0 {
		health.Status = "degraded"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	states := make([]sensor.State, 0, len(s.sensors))
	for _, sn := range s.sensors {
		states = append(states, sn.State())
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	sn, ok := s.byID[r.PathValue("entity_id")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown entity_id"})
		return
	}
	s.writeJSON(w, http.StatusOK, sn.State())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("write response")
	}
}
