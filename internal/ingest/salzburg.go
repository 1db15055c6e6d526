package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/models"
)

const (
	SalzburgOGDURL = "https://www.salzburg.gv.at/ogd/56c28e2d-8b9e-41ba-b7d6-fa4896b5b48b/Hydrografie%20Seen.txt"

	// BulkTimeout applies to the Salzburg and Hydro OOE bulk downloads.
	BulkTimeout = 20 * time.Second
)

// SalzburgOGDScraper downloads the Salzburg lake export shared by every
// Salzburg lake.
type SalzburgOGDScraper struct {
	session *httputil.Session
	url     string
	logger  zerolog.Logger
}

// NewSalzburgOGDScraper creates a scraper; an empty url selects SalzburgOGDURL.
func NewSalzburgOGDScraper(session *httputil.Session, url string, logger zerolog.Logger) *SalzburgOGDScraper {
	if url == "" {
		url = SalzburgOGDURL
	}
	return &SalzburgOGDScraper{
		session: session,
		url:     url,
		logger:  logutil.Component(logger, "scraper.salzburg_ogd"),
	}
}

func (s *SalzburgOGDScraper) URL() string { return s.url }

// Download fetches the raw export.
func (s *SalzburgOGDScraper) Download(ctx context.Context) (*FetchResult, error) {
	op := logutil.StartOp(s.logger, "http_get", map[string]any{"url": s.url})
	res, err := fetchDocument(ctx, s.session, models.SourceSalzburgOGD, s.url, acceptText)
	if err == nil {
		op.Set("bytes", res.Bytes)
	}
	return res, op.Done(err)
}

// FetchRecords downloads and parses every row of the export.
func (s *SalzburgOGDScraper) FetchRecords(ctx context.Context) ([]OGDRecord, *FetchResult, error) {
	res, err := s.Download(ctx)
	if err != nil {
		return nil, nil, err
	}
	op := logutil.StartOp(s.logger, "parse", nil)
	records, err := ParseOGD(res.Text)
	op.Set("records", len(records))
	return records, res, op.Done(err)
}

// FetchAllLatest returns the newest record per lake, keyed by dataset name. A
// nil targets returns every lake in the export.
func (s *SalzburgOGDScraper) FetchAllLatest(ctx context.Context, targets []string) (map[string]OGDRecord, error) {
	records, _, err := s.FetchRecords(ctx)
	if err != nil {
		return nil, err
	}
	return LatestByLake(records, targets), nil
}

// FetchLatestForLake returns the newest record whose normalized name matches
// lakeName.
func (s *SalzburgOGDScraper) FetchLatestForLake(ctx context.Context, lakeName string) (OGDRecord, error) {
	records, _, err := s.FetchRecords(ctx)
	if err != nil {
		return OGDRecord{}, err
	}
	target := NormalizeLakeKey(lakeName)
	var newest OGDRecord
	found := false
	for _, rec := range records {
		if NormalizeLakeKey(rec.LakeName) != target {
			continue
		}
		if !found || rec.Timestamp.After(newest.Timestamp) {
			newest, found = rec, true
		}
	}
	if !found {
		return OGDRecord{}, newNoDataError(models.SourceSalzburgOGD, "no measurement found for lake: %s", lakeName)
	}
	return newest, nil
}
