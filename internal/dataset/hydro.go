package dataset

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

const HydroDatasetID = "hydro_ooe_zrxp"

var (
	digitsRe   = regexp.MustCompile(`^[0-9]+$`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// HydroFetcher maps the Upper Austria ZRXP export onto member lakes. Members
// with a station_id are matched strictly by SANR. A numeric id in the portal
// URL is tried first for the rest, falling back to the lake name.
type HydroFetcher struct {
	url     string
	scoring ingest.NameScoring
	logger  zerolog.Logger
}

func NewHydroFetcher(url string, scoring ingest.NameScoring, logger zerolog.Logger) *HydroFetcher {
	return &HydroFetcher{url: url, scoring: scoring, logger: logger}
}

func (f *HydroFetcher) ID() string                { return HydroDatasetID }
func (f *HydroFetcher) Source() models.SourceType { return models.SourceHydroOOE }

func (f *HydroFetcher) LookupKey(lake config.LakeConfig) string {
	if sanr := StationSANR(lake); sanr != "" {
		return sanr
	}
	return nonAlnumRe.ReplaceAllString(strings.ToLower(lake.Name), "")
}

func (f *HydroFetcher) Fetch(ctx context.Context, sess *httputil.Session, members []config.LakeConfig) (FetchOutput, error) {
	scraper := ingest.NewHydroOOEScraper(sess, f.url, f.logger)
	scraper.SetScoring(f.scoring)
	blocks, res, err := scraper.FetchBlocks(ctx)
	if err != nil {
		return FetchOutput{}, err
	}

	out := FetchOutput{
		Readings: map[string]models.TemperatureReading{},
		Matched:  map[string]string{},
		Bytes:    res.Bytes,
	}
	for _, m := range members {
		sanr := StationSANR(m)
		records, block, err := ingest.SelectAndParse(blocks, sanr, m.Name, f.scoring)
		if sanr == "" {
			if hint := URLStationHint(m); hint != "" {
				if r, b, herr := ingest.SelectAndParse(blocks, hint, m.Name, f.scoring); herr == nil {
					records, block, err = r, b, nil
				}
			}
		}
		if err != nil {
			f.logger.Warn().Err(err).Str("lake", m.Name).Str("sanr", sanr).Msg("no usable station block")
			continue
		}
		reading, err := models.ReadingFromRecord(records[len(records)-1], models.SourceHydroOOE)
		if err != nil {
			continue
		}
		out.Matched[m.EntityID] = block.SANR

		key := f.LookupKey(m)
		if prev, ok := out.Readings[key]; ok && !reading.Timestamp().After(prev.Timestamp()) {
			continue
		}
		out.Readings[key] = reading
	}
	return out, nil
}

// StationSANR returns the station_id option when it is numeric.
func StationSANR(lake config.LakeConfig) string {
	if id := strings.TrimSpace(lake.Source.Hydro.StationID); digitsRe.MatchString(id) {
		return id
	}
	return ""
}

// URLStationHint returns the last numeric path segment of the lake URL. Portal
// ids do not always match the export's SANR, so it is only a preference.
func URLStationHint(lake config.LakeConfig) string {
	if lake.URL == "" {
		return ""
	}
	u, err := url.Parse(lake.URL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if digitsRe.MatchString(segments[i]) {
			return segments[i]
		}
	}
	return ""
}
