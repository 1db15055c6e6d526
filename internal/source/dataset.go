package source

import (
	"context"
	"time"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

// DatasetSource reads one lake out of a shared dataset coordinator. It never
// performs I/O itself; the coordinator's refresh does.
type DatasetSource struct {
	lake        config.LakeConfig
	coordinator *dataset.Coordinator
	key         string
}

// NewDatasetSource registers lake with c.
func NewDatasetSource(lake config.LakeConfig, c *dataset.Coordinator) *DatasetSource {
	key := c.Register(lake)
	return &DatasetSource{lake: lake, coordinator: c, key: key}
}

func (s *DatasetSource) Key() string                       { return s.key }
func (s *DatasetSource) Coordinator() *dataset.Coordinator { return s.coordinator }

// FetchTemperature returns the lake's value from the last successful refresh.
func (s *DatasetSource) FetchTemperature(ctx context.Context) (models.TemperatureReading, error) {
	if r, ok := s.coordinator.Reading(s.key); ok {
		return r, nil
	}
	return models.TemperatureReading{}, &ingest.NoDataError{
		Source: s.coordinator.Source(),
		Msg:    "lake " + s.lake.Name + " (" + s.key + ") missing from latest dataset",
	}
}

func (s *DatasetSource) UpdateFrequency() time.Duration { return s.coordinator.Interval() }
func (s *DatasetSource) Type() models.SourceType        { return s.coordinator.Source() }

// Station is the upstream station last matched for the lake, if any.
func (s *DatasetSource) Station() string {
	return s.coordinator.MatchedStation(s.lake.EntityID)
}

// Close unregisters the lake; the coordinator closes its session when the
// last lake leaves.
func (s *DatasetSource) Close() {
	s.coordinator.Unregister(s.lake.EntityID)
}
