package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/parseutil"
)

// OGDRecord is one parsed row of the Salzburg lake export.
type OGDRecord struct {
	LakeName     string
	Station      string
	Timestamp    time.Time
	TemperatureC float64
}

func (r OGDRecord) Record() models.Record {
	return models.Record{Timestamp: r.Timestamp, TemperatureC: r.TemperatureC}
}

// OGDColumns holds detected column indexes; -1 marks an absent column.
type OGDColumns struct {
	Name      int
	Temp      int
	Timestamp int
	Date      int
	Time      int
	Value     int
	Parameter int
	Unit      int
	Station   int
}

func (c OGDColumns) maxIndex() int {
	m := -1
	for _, i := range []int{c.Name, c.Temp, c.Timestamp, c.Date, c.Time, c.Value, c.Parameter, c.Unit, c.Station} {
		if i > m {
			m = i
		}
	}
	return m
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var (
	ogdNameCols      = compileAll(`gewassername`, `gewasser bezeichnung`, `gewasser`, `gewsser`, `stationsname`, `see`, `bezeichnung`, `\bname\b`)
	ogdTempCols      = compileAll(`wassertemperatur`, `wasser.*temperatur`, `\btemperatur\b`, `\bwassertemp\b`, `\btemp\b`, `cunit`, `celsius`)
	ogdTimestampCols = compileAll(`zeitstempel`, `messzeitpunkt`, `zeit punkt`, `zeitpunkt`, `timestamp`)
	ogdDateCols      = compileAll(`datum`, `messdatum`, `date`)
	ogdTimeCols      = compileAll(`zeit`, `uhrzeit`, `time`)
	ogdValueCols     = compileAll(`messwert`, `wert`, `value`)
	ogdParameterCols = compileAll(`parameter`, `param`, `messgrosse`, `messgroesse`)
	ogdUnitCols      = compileAll(`einheit`, `unit`, `cunit`)
	ogdStationCols   = compileAll(`station`, `standort`, `stelle`, `messstelle`, `messort`, `\bort\b`, `stationsname`)

	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9]+`)
	lineSplitRe = regexp.MustCompile(`\r?\n`)
	seeWordRe   = regexp.MustCompile(`\bsee\b`)
)

// normalizeHeaderToken strips diacritics, lowercases and turns every run of
// non-alphanumerics into a single space.
func normalizeHeaderToken(token string) string {
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(parseutil.Fold(token), " "))
}

// findFirst returns the first column whose token matches any pattern, scanning
// columns in order.
func findFirst(tokens []string, patterns []*regexp.Regexp) int {
	for i, tok := range tokens {
		for _, p := range patterns {
			if p.MatchString(tok) {
				return i
			}
		}
	}
	return -1
}

// DetectOGDColumns maps header labels onto column indexes. Required are a
// name column, a temperature column or a parameter+value pair, and a timestamp
// or date column.
func DetectOGDColumns(headers []string) (OGDColumns, error) {
	tokens := make([]string, len(headers))
	for i, h := range headers {
		tokens[i] = normalizeHeaderToken(h)
	}

	cols := OGDColumns{
		Name:      findFirst(tokens, ogdNameCols),
		Temp:      findFirst(tokens, ogdTempCols),
		Timestamp: findFirst(tokens, ogdTimestampCols),
		Date:      findFirst(tokens, ogdDateCols),
		Time:      findFirst(tokens, ogdTimeCols),
		Value:     findFirst(tokens, ogdValueCols),
		Parameter: findFirst(tokens, ogdParameterCols),
		Unit:      findFirst(tokens, ogdUnitCols),
		Station:   findFirst(tokens, ogdStationCols),
	}

	switch {
	case cols.Name < 0:
		return cols, newParseError(models.SourceSalzburgOGD, nil, "missing required 'name' column")
	case cols.Temp < 0 && (cols.Value < 0 || cols.Parameter < 0):
		return cols, newParseError(models.SourceSalzburgOGD, nil, "missing 'temperature' column or 'parameter' + 'value' columns")
	case cols.Timestamp < 0 && cols.Date < 0:
		return cols, newParseError(models.SourceSalzburgOGD, nil, "missing measurement time columns ('timestamp' or 'date')")
	}
	return cols, nil
}

// SplitOGD splits the payload into header cells and data rows. Blank lines
// are dropped and a leading byte order mark is removed.
func SplitOGD(text string) ([]string, [][]string, error) {
	lines := lineSplitRe.Split(strings.TrimSpace(text), -1)
	header := strings.TrimSpace(strings.TrimPrefix(lines[0], "\ufeff"))
	headers := splitCells(header)
	if len(headers) < 2 {
		return nil, nil, newParseError(models.SourceSalzburgOGD, nil, "header has fewer than 2 columns")
	}

	var rows [][]string
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitCells(line))
	}
	return headers, rows, nil
}

func splitCells(line string) []string {
	cells := strings.Split(line, ";")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// ParseOGDRow converts one row. It returns false for rows that are too short,
// unnamed, or carry no usable temperature or timestamp.
func ParseOGDRow(row []string, cols OGDColumns, loc *time.Location) (OGDRecord, bool) {
	if len(row) <= cols.maxIndex() {
		return OGDRecord{}, false
	}
	name := strings.TrimSpace(row[cols.Name])
	if name == "" {
		return OGDRecord{}, false
	}

	temp, ok := ogdTemperature(row, cols)
	if !ok {
		return OGDRecord{}, false
	}

	var ts time.Time
	if cols.Timestamp >= 0 {
		ts, ok = parseutil.ParseAnyDateTime(row[cols.Timestamp], loc)
	} else {
		var timeText string
		if cols.Time >= 0 {
			timeText = row[cols.Time]
		}
		ts, ok = parseutil.ParseDateAndTime(row[cols.Date], timeText, loc)
	}
	if !ok {
		return OGDRecord{}, false
	}

	rec := OGDRecord{LakeName: name, Timestamp: ts, TemperatureC: temp}
	if cols.Station >= 0 {
		rec.Station = row[cols.Station]
	}
	return rec, true
}

func ogdTemperature(row []string, cols OGDColumns) (float64, bool) {
	if cols.Temp >= 0 {
		if v, err := parseutil.ParseTemperature(row[cols.Temp]); err == nil {
			return v, true
		}
	}
	if cols.Value < 0 || cols.Parameter < 0 {
		return 0, false
	}
	param := strings.ToLower(strings.TrimSpace(row[cols.Parameter]))
	if !strings.Contains(param, "temperatur") && param != "wt" && !strings.Contains(param, " wt") {
		return 0, false
	}
	v, err := parseutil.ParseTemperature(row[cols.Value])
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseOGD parses a full export. Times without an explicit offset are read in
// Europe/Vienna.
func ParseOGD(text string) ([]OGDRecord, error) {
	headers, rows, err := SplitOGD(text)
	if err != nil {
		return nil, err
	}
	cols, err := DetectOGDColumns(headers)
	if err != nil {
		return nil, err
	}

	loc := parseutil.Vienna()
	var out []OGDRecord
	for _, row := range rows {
		if rec, ok := ParseOGDRow(row, cols, loc); ok {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, newNoDataError(models.SourceSalzburgOGD, "no measurement rows parsed from payload")
	}
	return out, nil
}

var lakeAliases = map[string]string{
	"abersee":   "wolfgang",
	"zellamsee": "zeller",
	"zell":      "zeller",
	"zellsee":   "zeller",
}

var lakeStems = []struct{ pattern, stem string }{
	{"obertrumersee", "obertrumer"},
	{"untertrumersee", "untertrumer"},
	{"mattsee", "matt"},
	{"grabensee", "graben"},
	{"wolfgangsee", "wolfgang"},
	{"zellersee", "zeller"},
	{"wallersee", "waller"},
	{"fuschlsee", "fuschl"},
	{"mondsee", "mond"},
	{"attersee", "atter"},
}

// NormalizeLakeKey reduces a lake name to a stable matching key, so
// "Obertrumer See", "Obertrumersee" and "obertrumer" all agree.
func NormalizeLakeKey(name string) string {
	base := strings.TrimSpace(parseutil.Fold(name))
	base = strings.ReplaceAll(base, "zeller see", "zellersee")
	base = strings.ReplaceAll(base, "obertrumer see", "obertrumersee")
	base = seeWordRe.ReplaceAllString(base, "")
	base = nonAlnumRe.ReplaceAllString(base, "")

	if alias, ok := lakeAliases[base]; ok {
		base = alias
	}
	for _, s := range lakeStems {
		if strings.Contains(base, s.pattern) {
			return s.stem
		}
	}
	return base
}

// LatestByLake keeps the newest record per normalized lake key and re-keys the
// result by the name used in the dataset. A nil targets keeps every lake.
func LatestByLake(records []OGDRecord, targets []string) map[string]OGDRecord {
	var allow map[string]bool
	if targets != nil {
		allow = make(map[string]bool, len(targets))
		for _, t := range targets {
			allow[NormalizeLakeKey(t)] = true
		}
	}

	newest := map[string]OGDRecord{}
	for _, rec := range records {
		key := NormalizeLakeKey(rec.LakeName)
		if allow != nil && !allow[key] {
			continue
		}
		if prev, ok := newest[key]; !ok || rec.Timestamp.After(prev.Timestamp) {
			newest[key] = rec
		}
	}

	out := make(map[string]OGDRecord, len(newest))
	for _, rec := range newest {
		out[rec.LakeName] = rec
	}
	return out
}
