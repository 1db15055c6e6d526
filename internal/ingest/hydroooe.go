package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/models"
)

const HydroOOEURL = "https://data.ooe.gv.at/files/hydro/HDOOE_Export_WT.zrxp"

// HydroOOEScraper downloads the Upper Austria ZRXP water temperature export.
type HydroOOEScraper struct {
	session *httputil.Session
	url     string
	scoring NameScoring
	logger  zerolog.Logger
}

// NewHydroOOEScraper creates a scraper; an empty url selects HydroOOEURL.
func NewHydroOOEScraper(session *httputil.Session, url string, logger zerolog.Logger) *HydroOOEScraper {
	if url == "" {
		url = HydroOOEURL
	}
	return &HydroOOEScraper{
		session: session,
		url:     url,
		scoring: DefaultNameScoring,
		logger:  logutil.Component(logger, "scraper.hydro_ooe"),
	}
}

func (s *HydroOOEScraper) URL() string { return s.url }

func (s *HydroOOEScraper) Scoring() NameScoring { return s.scoring }

// SetScoring replaces the name-hint weights.
func (s *HydroOOEScraper) SetScoring(n NameScoring) { s.scoring = n }

// Download fetches the raw export.
func (s *HydroOOEScraper) Download(ctx context.Context) (*FetchResult, error) {
	op := logutil.StartOp(s.logger, "http_get", map[string]any{"url": s.url})
	res, err := fetchDocument(ctx, s.session, models.SourceHydroOOE, s.url, acceptText)
	if err == nil {
		op.Set("bytes", res.Bytes)
	}
	return res, op.Done(err)
}

// FetchBlocks downloads the export and splits it into station blocks.
func (s *HydroOOEScraper) FetchBlocks(ctx context.Context) ([]ZRXPBlock, *FetchResult, error) {
	res, err := s.Download(ctx)
	if err != nil {
		return nil, nil, err
	}
	blocks := SplitZRXPBlocks(res.Text)
	if len(blocks) == 0 {
		return nil, res, newParseError(models.SourceHydroOOE, nil, "no %s station blocks in export", zrxpBlockMarker)
	}
	s.logger.Debug().Int("blocks", len(blocks)).Int("bytes", res.Bytes).Msg("split export")
	return blocks, res, nil
}

// FetchRecords returns the sorted series of the station selected by sanr or,
// without a sanr, by nameHint.
func (s *HydroOOEScraper) FetchRecords(ctx context.Context, sanr, nameHint string) ([]models.Record, ZRXPBlock, error) {
	blocks, _, err := s.FetchBlocks(ctx)
	if err != nil {
		return nil, ZRXPBlock{}, err
	}
	return SelectAndParse(blocks, sanr, nameHint, s.scoring)
}

// FetchLatest returns the newest value of the selected station and the SANR
// of the block it came from.
func (s *HydroOOEScraper) FetchLatest(ctx context.Context, sanr, nameHint string) (models.Record, string, error) {
	records, block, err := s.FetchRecords(ctx, sanr, nameHint)
	if err != nil {
		return models.Record{}, "", err
	}
	return records[len(records)-1], block.SANR, nil
}
