package parseutil

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	ZoneBerlin = "Europe/Berlin"
	ZoneVienna = "Europe/Vienna"
)

var (
	zoneMu    sync.Mutex
	zoneCache = map[string]*time.Location{}
)

// Location loads a named zone once. An unknown zone falls back to UTC so a
// host without tzdata still parses, just without local offsets.
func Location(name string) *time.Location {
	zoneMu.Lock()
	defer zoneMu.Unlock()
	if loc, ok := zoneCache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	zoneCache[name] = loc
	return loc
}

func Berlin() *time.Location { return Location(ZoneBerlin) }
func Vienna() *time.Location { return Location(ZoneVienna) }

var germanLayouts = []string{"02.01.2006 15:04:05", "02.01.2006 15:04"}

// ParseGermanDateTime parses "dd.mm.yyyy HH:MM[:SS]" in loc.
func ParseGermanDateTime(text string, loc *time.Location) (time.Time, error) {
	cleaned := CollapseSpace(text)
	var lastErr error
	for _, layout := range germanLayouts {
		t, err := time.ParseInLocation(layout, cleaned, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse datetime %q: %w", text, lastErr)
}

var (
	trailingZoneRe = regexp.MustCompile(`\s+[A-ZÄÖÜ]{2,6}$`)
	dottedISODate  = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})`)
	offsetNoColon  = regexp.MustCompile(`(T\d{2}:\d{2}(?::\d{2})?)([+-])(\d{2})(\d{2})$`)
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

var localLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseAnyDateTime accepts ISO-8601 with an offset (including a Z suffix or an
// offset without colon), German "dd.mm.yyyy HH:MM[:SS]", ISO without offset
// (interpreted in loc), or a date and time separated by whitespace. A bare date
// is placed at 12:00 local time.
func ParseAnyDateTime(text string, loc *time.Location) (time.Time, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return time.Time{}, false
	}

	norm := trailingZoneRe.ReplaceAllString(t, "")
	norm = dottedISODate.ReplaceAllString(norm, "$1-$2-$3")
	norm = offsetNoColon.ReplaceAllString(norm, "$1$2$3:$4")
	if strings.HasSuffix(norm, "Z") {
		norm = strings.TrimSuffix(norm, "Z") + "+00:00"
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, norm); err == nil {
			return ts, true
		}
	}

	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, t, loc); err == nil {
			return ts, true
		}
	}

	if parts := strings.Fields(t); len(parts) >= 2 {
		return ParseDateAndTime(parts[0], parts[1], loc)
	}
	return ParseDateAndTime(t, "", loc)
}

var (
	dateLayouts = []string{"02.01.2006", "2006-01-02", "02.01.06"}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// ParseDateAndTime combines separate date and time cells. When the time is
// missing or unreadable the value is placed at noon so daily rows do not lean
// towards either day boundary.
func ParseDateAndTime(dateText, timeText string, loc *time.Location) (time.Time, bool) {
	d := strings.TrimSpace(dateText)
	tm := strings.TrimSpace(timeText)
	if d == "" {
		return time.Time{}, false
	}
	for _, dl := range dateLayouts {
		base, err := time.ParseInLocation(dl, d, loc)
		if err != nil {
			continue
		}
		if tm == "" {
			return time.Date(base.Year(), base.Month(), base.Day(), 12, 0, 0, 0, loc), true
		}
		for _, tl := range timeLayouts {
			clock, err := time.Parse(tl, tm)
			if err != nil {
				continue
			}
			return time.Date(base.Year(), base.Month(), base.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc), true
		}
		// An unreadable time cell still yields a usable date.
		return time.Date(base.Year(), base.Month(), base.Day(), 12, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}
