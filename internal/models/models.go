package models

import (
	"fmt"
	"time"
)

// SourceType identifies the upstream portal a reading came from.
type SourceType string

const (
	SourceGKDBayern   SourceType = "gkd_bayern"
	SourceHydroOOE    SourceType = "hydro_ooe"
	SourceSalzburgOGD SourceType = "salzburg_ogd"
)

// SourceTypes lists every supported source in a stable order.
var SourceTypes = []SourceType{SourceGKDBayern, SourceHydroOOE, SourceSalzburgOGD}

func (s SourceType) Valid() bool {
	switch s {
	case SourceGKDBayern, SourceHydroOOE, SourceSalzburgOGD:
		return true
	}
	return false
}

func (s SourceType) String() string {
	return string(s)
}

// ParseSourceType converts a configured type string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown source type %q", s)
	}
	return st, nil
}

// Record is a single parsed measurement before it is attributed to a source.
type Record struct {
	Timestamp    time.Time
	TemperatureC float64
}

// TemperatureReading is the value handed to sensors. It is immutable once built.
type TemperatureReading struct {
	timestamp    time.Time
	temperatureC float64
	source       SourceType
}

// NewTemperatureReading validates the source. Temperature bounds are enforced by
// the parsers that produce the value, not here.
func NewTemperatureReading(ts time.Time, tempC float64, source SourceType) (TemperatureReading, error) {
	if !source.Valid() {
		return TemperatureReading{}, fmt.Errorf("new reading: unknown source %q", source)
	}
	if ts.IsZero() {
		return TemperatureReading{}, fmt.Errorf("new reading: zero timestamp")
	}
	return TemperatureReading{timestamp: ts, temperatureC: tempC, source: source}, nil
}

// ReadingFromRecord attributes a parsed record to a source.
func ReadingFromRecord(r Record, source SourceType) (TemperatureReading, error) {
	return NewTemperatureReading(r.Timestamp, r.TemperatureC, source)
}

func (r TemperatureReading) Timestamp() time.Time  { return r.timestamp }
func (r TemperatureReading) TemperatureC() float64 { return r.temperatureC }
func (r TemperatureReading) Source() SourceType    { return r.source }

// Age returns how old the reading is relative to now.
func (r TemperatureReading) Age(now time.Time) time.Duration {
	return now.Sub(r.timestamp)
}
