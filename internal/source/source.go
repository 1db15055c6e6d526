// Package source provides the per-lake view over the upstream portals. GKD
// Bayern lakes poll their own page; Hydro OOE and Salzburg OGD lakes read from
// the shared dataset coordinator they are registered with.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

// DataSource yields the latest reading for one lake.
type DataSource interface {
	FetchTemperature(ctx context.Context) (models.TemperatureReading, error)
	// UpdateFrequency is advisory; the scheduler decides when to poll.
	UpdateFrequency() time.Duration
	Type() models.SourceType
	Close()
}

// Stationer is implemented by sources that know which upstream station they
// were matched to.
type Stationer interface {
	Station() string
}

// Options for New.
type Options struct {
	// Session, when set, is used by per-lake sources instead of a dedicated
	// session. It is never closed by the source.
	Session *httputil.Session
	Logger  zerolog.Logger
}

// New creates the data source for lake.
func New(lake config.LakeConfig, reg *dataset.Registry, opts Options) (DataSource, error) {
	switch lake.Source.Type {
	case models.SourceGKDBayern:
		sess, owned := opts.Session, false
		if sess == nil {
			sess, owned = reg.NewSession(lake.UserAgent, ingest.GKDTimeout), true
		}
		return NewGKDSource(lake, sess, owned, opts.Logger), nil

	case models.SourceHydroOOE, models.SourceSalzburgOGD:
		c, err := reg.Coordinator(lake.Source.Type)
		if err != nil {
			return nil, fmt.Errorf("create source %s: %w", lake.EntityID, err)
		}
		return NewDatasetSource(lake, c), nil
	}
	return nil, fmt.Errorf("create source %s: unknown source type %q", lake.EntityID, lake.Source.Type)
}
