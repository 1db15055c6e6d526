package dataset

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

const SalzburgDatasetID = "salzburg_ogd_seen"

// SalzburgFetcher maps the Salzburg OGD lake export onto member lakes by
// normalized lake name.
type SalzburgFetcher struct {
	url    string
	logger zerolog.Logger
}

func NewSalzburgFetcher(url string, logger zerolog.Logger) *SalzburgFetcher {
	return &SalzburgFetcher{url: url, logger: logger}
}

func (f *SalzburgFetcher) ID() string                { return SalzburgDatasetID }
func (f *SalzburgFetcher) Source() models.SourceType { return models.SourceSalzburgOGD }

func (f *SalzburgFetcher) LookupKey(lake config.LakeConfig) string {
	return ingest.NormalizeLakeKey(salzburgName(lake))
}

func (f *SalzburgFetcher) Fetch(ctx context.Context, sess *httputil.Session, members []config.LakeConfig) (FetchOutput, error) {
	scraper := ingest.NewSalzburgOGDScraper(sess, f.url, f.logger)
	records, res, err := scraper.FetchRecords(ctx)
	if err != nil {
		return FetchOutput{}, err
	}

	targets := make([]string, 0, len(members))
	for _, m := range members {
		targets = append(targets, salzburgName(m))
	}

	out := FetchOutput{Readings: map[string]models.TemperatureReading{}, Bytes: res.Bytes}
	for name, rec := range ingest.LatestByLake(records, targets) {
		reading, err := models.ReadingFromRecord(rec.Record(), models.SourceSalzburgOGD)
		if err != nil {
			f.logger.Debug().Err(err).Str("lake", name).Msg("skipping record")
			continue
		}
		out.Readings[ingest.NormalizeLakeKey(name)] = reading
	}
	return out, nil
}

// salzburgName is the name matched against the export: lake_name when set,
// else the configured display name.
func salzburgName(lake config.LakeConfig) string {
	if lake.Source.Salzburg.LakeName != "" {
		return lake.Source.Salzburg.LakeName
	}
	return lake.Name
}
