package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/htmlutil"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/logutil"
	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/parseutil"
)

// GKDTimeout is the per-request timeout for GKD Bayern pages.
const GKDTimeout = 15 * time.Second

// GKDScraper reads the measurement table of one GKD Bayern lake page.
type GKDScraper struct {
	session       *httputil.Session
	url           string
	tableSelector string
	logger        zerolog.Logger
}

// NewGKDScraper creates a scraper for url. tableSelector is an optional CSS
// selector tried before the automatic table detection.
func NewGKDScraper(session *httputil.Session, url, tableSelector string, logger zerolog.Logger) *GKDScraper {
	return &GKDScraper{
		session:       session,
		url:           url,
		tableSelector: strings.TrimSpace(tableSelector),
		logger:        logutil.Component(logger, "scraper.gkd_bayern"),
	}
}

func (s *GKDScraper) URL() string { return s.url }

// FetchLatest returns the newest measurement on the page.
func (s *GKDScraper) FetchLatest(ctx context.Context) (models.Record, error) {
	records, err := s.FetchRecords(ctx)
	if err != nil {
		return models.Record{}, err
	}
	return records[len(records)-1], nil
}

// FetchRecords fetches the configured page and returns its rows sorted by
// timestamp without duplicates. When the page has no measurement table the
// "/tabelle" view is tried once; if that request fails the primary page is
// parsed as is.
func (s *GKDScraper) FetchRecords(ctx context.Context) ([]models.Record, error) {
	primary, err := s.fetchHTML(ctx, s.url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(primary.Text))
	if err != nil {
		return nil, newParseError(models.SourceGKDBayern, err, "read html")
	}

	if !hasMeasurementTable(doc, s.tableSelector) {
		if tableURL, ok := tableViewURL(s.url); ok {
			fallback, ferr := s.fetchHTML(ctx, tableURL)
			if ferr == nil {
				return ParseGKDTable(fallback.Text, s.tableSelector)
			}
			s.logger.Debug().Err(ferr).Str("url", tableURL).Msg("table view fetch failed, parsing primary page")
		}
	}
	return parseGKDDocument(doc, s.tableSelector)
}

func (s *GKDScraper) fetchHTML(ctx context.Context, rawURL string) (*FetchResult, error) {
	op := logutil.StartOp(s.logger, "http_get", map[string]any{"url": rawURL})
	res, err := fetchDocument(ctx, s.session, models.SourceGKDBayern, rawURL, acceptHTML)
	if err == nil {
		op.Set("status", res.StatusCode)
		op.Set("bytes", res.Bytes)
	}
	return res, op.Done(err)
}

// tableViewURL derives the explicit table view of a lake page.
func tableViewURL(rawURL string) (string, bool) {
	trimmed := strings.TrimRight(rawURL, "/")
	if strings.HasSuffix(trimmed, "/tabelle") {
		return "", false
	}
	return trimmed + "/tabelle", true
}

// ParseGKDTable parses a GKD measurement page. It returns a *ParseError when
// the page has no table and a *NoDataError when no row survives filtering.
func ParseGKDTable(html, tableSelector string) ([]models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, newParseError(models.SourceGKDBayern, err, "read html")
	}
	return parseGKDDocument(doc, tableSelector)
}

func parseGKDDocument(doc *goquery.Document, tableSelector string) ([]models.Record, error) {
	table := chooseTable(doc, tableSelector)
	if table == nil {
		return nil, newParseError(models.SourceGKDBayern, nil, "no <table> elements found in page")
	}

	rows := table.ChildrenFiltered("tbody").First().Find("tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}

	var records []models.Record
	berlin := parseutil.Berlin()
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return
		}
		dateText := htmlutil.CellText(cells.Eq(0))
		tempText := htmlutil.CellText(cells.Eq(1))
		if dateText == "" || tempText == "" || tempText == "-" {
			return
		}
		ts, err := parseutil.ParseGermanDateTime(dateText, berlin)
		if err != nil {
			return
		}
		temp, err := parseutil.ParseTemperature(tempText)
		if err != nil {
			return
		}
		records = append(records, models.Record{Timestamp: ts, TemperatureC: temp})
	})

	if len(records) == 0 {
		return nil, newNoDataError(models.SourceGKDBayern, "no measurement rows parsed from table")
	}
	return parseutil.SortDedup(records), nil
}

// chooseTable prefers the configured selector, then a table whose header looks
// like a measurement table, then the first table. It returns nil when the
// document has no table at all.
func chooseTable(doc *goquery.Document, tableSelector string) *goquery.Selection {
	if tableSelector != "" {
		if sel := selectorTable(doc, tableSelector); sel != nil {
			return sel
		}
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil
	}
	var chosen *goquery.Selection
	tables.EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if looksLikeMeasurement(headerTexts(t)) {
			chosen = t
			return false
		}
		return true
	})
	if chosen == nil {
		chosen = tables.First()
	}
	return chosen
}

func selectorTable(doc *goquery.Document, selector string) (sel *goquery.Selection) {
	defer func() {
		// goquery panics on an unparsable selector.
		if recover() != nil {
			sel = nil
		}
	}()
	match := doc.Find(selector).First()
	if match.Length() == 0 {
		return nil
	}
	if goquery.NodeName(match) == "table" {
		return match
	}
	if inner := match.Find("table").First(); inner.Length() > 0 {
		return inner
	}
	return nil
}

func hasMeasurementTable(doc *goquery.Document, tableSelector string) bool {
	if tableSelector != "" && selectorTable(doc, tableSelector) != nil {
		return true
	}
	found := false
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		found = looksLikeMeasurement(headerTexts(t))
		return !found
	})
	return found
}

// headerTexts reads <thead> header cells, falling back to the first row.
func headerTexts(table *goquery.Selection) []string {
	var out []string
	table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		out = append(out, htmlutil.CellText(th))
	})
	if len(out) > 0 {
		return out
	}
	table.Find("tr").First().ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, htmlutil.CellText(c))
	})
	return out
}

func looksLikeMeasurement(headers []string) bool {
	combined := strings.ToLower(strings.Join(headers, " "))
	hasDate := strings.Contains(combined, "datum") || strings.Contains(combined, "date")
	hasTemp := strings.Contains(combined, "wassertemperatur") || strings.Contains(combined, "°c")
	return hasDate && hasTemp
}
