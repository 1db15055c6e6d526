package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lox/laketemp/internal/models"
	"github.com/lox/laketemp/internal/parseutil"
)

const (
	zrxpBlockMarker  = "#SANR"
	zrxpLayoutMarker = "#LAYOUT(timestamp,value)"
	zrxpFieldSep     = "|*|"
	zrxpTimeLayout   = "20060102150405"
)

var (
	zrxpSANRRe   = regexp.MustCompile(`#SANR(\d+)`)
	zrxpSNameRe  = regexp.MustCompile(`\|\*\|SNAME([^|]*)\|\*\|`)
	zrxpSWaterRe = regexp.MustCompile(`\|\*\|SWATER([^|]*)\|\*\|`)
	zrxpCNRRe    = regexp.MustCompile(`\|\*\|CNR([^|]*)\|\*\|`)
	zrxpCNameRe  = regexp.MustCompile(`\|\*\|CNAME([^|]*)\|\*\|`)
	zrxpTZRe     = regexp.MustCompile(`#TZUTC([+-])(\d+)`)
	zrxpRInvalRe = regexp.MustCompile(`RINVAL\s*([+-]?\d+(?:[.,]\d+)?)`)
	zrxpPairRe   = regexp.MustCompile(`(\d{14})\s+([+-]?\d+(?:[.,]\d+)?)`)
	hintSplitRe  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// ZRXPBlock is one station section of a ZRXP export together with its header
// fields.
type ZRXPBlock struct {
	Raw       string
	SANR      string
	SName     string
	SWater    string
	ParamCode string
	ParamName string
}

// IsWaterTemperature reports whether the block carries the water temperature
// parameter.
func (b ZRXPBlock) IsWaterTemperature() bool {
	if strings.EqualFold(strings.TrimSpace(b.ParamCode), "WT") {
		return true
	}
	name := strings.ToLower(b.ParamName)
	return strings.Contains(name, "wasser") && strings.Contains(name, "temperatur")
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// SplitZRXPBlocks cuts an export at every "#SANR" marker. Text before the
// first marker is discarded.
func SplitZRXPBlocks(text string) []ZRXPBlock {
	parts := strings.Split(text, zrxpBlockMarker)
	if len(parts) < 2 {
		return nil
	}
	blocks := make([]ZRXPBlock, 0, len(parts)-1)
	for _, part := range parts[1:] {
		raw := zrxpBlockMarker + part
		blocks = append(blocks, ZRXPBlock{
			Raw:       raw,
			SANR:      firstGroup(zrxpSANRRe, raw),
			SName:     firstGroup(zrxpSNameRe, raw),
			SWater:    firstGroup(zrxpSWaterRe, raw),
			ParamCode: firstGroup(zrxpCNRRe, raw),
			ParamName: firstGroup(zrxpCNameRe, raw),
		})
	}
	return blocks
}

// NameScoring weights the name-hint fallback. The lake bonuses separate the
// Irrsee (Zeller See) stations from similarly named ones.
type NameScoring struct {
	WaterTemperature int
	IrrseeWater      int
	IrrseeZell       int
}

var DefaultNameScoring = NameScoring{WaterTemperature: 3, IrrseeWater: 2, IrrseeZell: 1}

// SelectZRXPBlock picks the block for a lake. A numeric sanr is matched
// exactly and, among blocks sharing it, the water temperature series wins.
// Without a sanr the name hint is scored against SNAME and SWATER; the highest
// score wins and ties keep the first block.
func SelectZRXPBlock(blocks []ZRXPBlock, sanr, nameHint string, scoring NameScoring) (ZRXPBlock, bool) {
	if sanr = strings.TrimSpace(sanr); isDigits(sanr) {
		return selectBySANR(blocks, sanr)
	}
	return selectByName(blocks, nameHint, scoring)
}

func selectBySANR(blocks []ZRXPBlock, sanr string) (ZRXPBlock, bool) {
	var first *ZRXPBlock
	for i := range blocks {
		if blocks[i].SANR != sanr {
			continue
		}
		if blocks[i].IsWaterTemperature() {
			return blocks[i], true
		}
		if first == nil {
			first = &blocks[i]
		}
	}
	if first == nil {
		return ZRXPBlock{}, false
	}
	return *first, true
}

func hintTokens(hint string) []string {
	var tokens []string
	for _, t := range hintSplitRe.Split(parseutil.Fold(hint), -1) {
		if len([]rune(t)) >= 3 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func selectByName(blocks []ZRXPBlock, hint string, scoring NameScoring) (ZRXPBlock, bool) {
	tokens := hintTokens(hint)
	if len(tokens) == 0 {
		return ZRXPBlock{}, false
	}

	best, bestScore := -1, 0
	for i, b := range blocks {
		if score := scoreBlock(b, tokens, scoring); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return ZRXPBlock{}, false
	}
	return blocks[best], true
}

func scoreBlock(b ZRXPBlock, tokens []string, scoring NameScoring) int {
	fields := parseutil.Fold(b.SName + " " + b.SWater)
	water := parseutil.Fold(b.SWater)

	matches := 0
	var irrsee, zell bool
	for _, t := range tokens {
		if !strings.Contains(fields, t) {
			continue
		}
		matches++
		switch t {
		case "irrsee":
			irrsee = true
		case "zell":
			zell = true
		}
	}
	if matches == 0 {
		return 0
	}

	score := matches
	if b.IsWaterTemperature() {
		score += scoring.WaterTemperature
	}
	if strings.Contains(water, "irrsee") {
		score += scoring.IrrseeWater
	}
	if irrsee && zell {
		score += scoring.IrrseeZell
	}
	return score
}

// ParseZRXPBlock extracts the timestamp/value series of one block. Values
// equal to the RINVAL sentinel or outside the plausible range are dropped.
func ParseZRXPBlock(b ZRXPBlock) ([]models.Record, error) {
	loc := time.UTC
	if m := zrxpTZRe.FindStringSubmatch(b.Raw); m != nil {
		hours, _ := strconv.Atoi(m[2])
		if m[1] == "-" {
			hours = -hours
		}
		loc = time.FixedZone(fmt.Sprintf("UTC%s%s", m[1], m[2]), hours*3600)
	}

	invalid, hasInvalid := 0.0, false
	if m := zrxpRInvalRe.FindStringSubmatch(b.Raw); m != nil {
		if v, err := parseutil.ParseDecimal(m[1]); err == nil {
			invalid, hasInvalid = v, true
		}
	}

	layout := strings.Index(b.Raw, zrxpLayoutMarker)
	if layout < 0 {
		return nil, newParseError(models.SourceHydroOOE, nil, "missing %s in block SANR %s", zrxpLayoutMarker, b.SANR)
	}
	sep := strings.Index(b.Raw[layout:], zrxpFieldSep)
	if sep < 0 {
		return nil, newParseError(models.SourceHydroOOE, nil, "missing data delimiter after layout in block SANR %s", b.SANR)
	}
	series := b.Raw[layout+sep+len(zrxpFieldSep):]

	var records []models.Record
	for _, m := range zrxpPairRe.FindAllStringSubmatch(series, -1) {
		ts, err := time.ParseInLocation(zrxpTimeLayout, m[1], loc)
		if err != nil {
			continue
		}
		v, err := parseutil.ParseDecimal(m[2])
		if err != nil {
			continue
		}
		if hasInvalid && math.Abs(v-invalid) < 1e-9 {
			continue
		}
		if !parseutil.InRange(v) {
			continue
		}
		records = append(records, models.Record{Timestamp: ts, TemperatureC: v})
	}
	if len(records) == 0 {
		return nil, newNoDataError(models.SourceHydroOOE, "no usable data points in block SANR %s", b.SANR)
	}
	return parseutil.SortDedup(records), nil
}

// SelectAndParse selects the block for a lake and returns its sorted series.
func SelectAndParse(blocks []ZRXPBlock, sanr, nameHint string, scoring NameScoring) ([]models.Record, ZRXPBlock, error) {
	block, ok := SelectZRXPBlock(blocks, sanr, nameHint, scoring)
	if !ok {
		if isDigits(strings.TrimSpace(sanr)) {
			return nil, ZRXPBlock{}, newNoDataError(models.SourceHydroOOE, "no station with SANR %s (name %q)", strings.TrimSpace(sanr), nameHint)
		}
		return nil, ZRXPBlock{}, newNoDataError(models.SourceHydroOOE, "no station matching name %q", nameHint)
	}
	records, err := ParseZRXPBlock(block)
	if err != nil {
		return nil, block, err
	}
	return records, block, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
