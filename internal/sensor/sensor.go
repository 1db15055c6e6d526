// Package sensor holds the per-lake state exposed to consumers: the latest
// reading, whether it is still fresh, and the descriptive attributes.
package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/metrics"
	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/source"
)

const Attribution = "Data courtesy of public hydrology portals"

// State is the outbound view of one lake.
type State struct {
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	Value      *float64          `json:"state"`
	Available  bool              `json:"available"`
	Attributes map[string]string `json:"attributes"`
}

// Sensor tracks one lake.
type Sensor struct {
	lake   config.LakeConfig
	src    source.DataSource
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	reading   *models.TemperatureReading
	available bool
	lastErr   error
	updatedAt time.Time
}

func New(lake config.LakeConfig, src source.DataSource, logger zerolog.Logger) *Sensor {
	return &Sensor{
		lake:   lake,
		src:    src,
		logger: logutil.Component(logger, "sensor").With().Str("entity_id", lake.EntityID).Logger(),
		now:    time.Now,
	}
}

func (s *Sensor) EntityID() string          { return s.lake.EntityID }
func (s *Sensor) Lake() config.LakeConfig   { return s.lake }
func (s *Sensor) Source() source.DataSource { return s.src }

// Update asks the source for its latest reading. A failure marks the sensor
// unavailable but keeps the last reading for its timestamp attribute.
func (s *Sensor) Update(ctx context.Context) error {
	r, err := s.src.FetchTemperature(ctx)

	s.mu.Lock()
	s.updatedAt = s.now()
	s.lastErr = err
	if err != nil {
		if s.available {
			s.logger.Warn().Err(err).Msg("lake unavailable")
		}
		s.available = false
	} else {
		s.reading = &r
		s.available = true
	}
	s.mu.Unlock()

	s.observe()
	return err
}

// Err is the error of the last update, if it failed.
func (s *Sensor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// State evaluates the sensor at the current time. The value is nil when the
// last update failed, no reading exists, or the reading is older than
// timeout_hours.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		EntityID: s.lake.EntityID,
		Name:     s.lake.Name,
		Attributes: map[string]string{
			"lake_name":   s.lake.Name,
			"source_type": s.lake.Source.Type.String(),
			"url":         s.lake.URL,
			"attribution": Attribution,
		},
	}
	if s.reading != nil {
		st.Attributes["data_timestamp"] = s.reading.Timestamp().Format(time.RFC3339)
	}
	if stn, ok := s.src.(source.Stationer); ok {
		if sanr := stn.Station(); sanr != "" {
			st.Attributes["station_sanr"] = sanr
		}
	}

	if !s.available || s.reading == nil {
		return st
	}
	if s.reading.Age(s.now()) > s.lake.Timeout() {
		return st
	}
	v := s.reading.TemperatureC()
	st.Value = &v
	st.Available = true
	return st
}

func (s *Sensor) observe() {
	st := s.State()
	if st.Available {
		metrics.LakeAvailable.WithLabelValues(st.EntityID).Set(1)
		metrics.LakeTemperature.WithLabelValues(st.EntityID, s.lake.Source.Type.String()).Set(*st.Value)
		return
	}
	metrics.LakeAvailable.WithLabelValues(st.EntityID).Set(0)
}
