package source

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

// GKDSource scrapes one GKD Bayern lake page.
type GKDSource struct {
	lake    config.LakeConfig
	session *httputil.Session
	owned   bool
	scraper *ingest.GKDScraper
}

// NewGKDSource wraps sess. When owned is true Close releases the session.
func NewGKDSource(lake config.LakeConfig, sess *httputil.Session, owned bool, logger zerolog.Logger) *GKDSource {
	return &GKDSource{
		lake:    lake,
		session: sess,
		owned:   owned,
		scraper: ingest.NewGKDScraper(sess, lake.URL, lake.Source.GKD.TableSelector, logger),
	}
}

func (s *GKDSource) FetchTemperature(ctx context.Context) (models.TemperatureReading, error) {
	rec, err := s.scraper.FetchLatest(ctx)
	if err != nil {
		return models.TemperatureReading{}, err
	}
	return models.ReadingFromRecord(rec, models.SourceGKDBayern)
}

func (s *GKDSource) UpdateFrequency() time.Duration { return s.lake.ScanDuration() }
func (s *GKDSource) Type() models.SourceType        { return models.SourceGKDBayern }

func (s *GKDSource) Close() {
	if s.owned {
		s.session.Close()
	}
}
