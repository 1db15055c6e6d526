package parseutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Plausibility bounds for lake water temperatures in Celsius.
const (
	MinTemperatureC = -5.0
	MaxTemperatureC = 45.0
)

var (
	ErrNoNumber   = errors.New("no numeric value")
	ErrOutOfRange = errors.New("temperature out of range")
)

// InRange reports whether t lies within the plausible water temperature range.
func InRange(t float64) bool {
	return t >= MinTemperatureC && t <= MaxTemperatureC
}

// ParseTemperature parses values such as "22,8", "21.3" or "21,3 °C".
// Unit suffixes are stripped, a decimal comma is accepted and the result must
// pass InRange.
func ParseTemperature(text string) (float64, error) {
	cleaned := strings.ToLower(CollapseSpace(text))
	cleaned = strings.ReplaceAll(cleaned, "°c", "")
	cleaned = strings.ReplaceAll(cleaned, "°", "")
	cleaned = strings.ReplaceAll(cleaned, "c", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	var b strings.Builder
	for _, r := range cleaned {
		if (r >= '0' && r <= '9') || r == '.' || r == '+' || r == '-' {
			b.WriteRune(r)
		}
	}
	numeric := b.String()
	switch numeric {
	case "", "+", "-", ".":
		return 0, fmt.Errorf("parse temperature %q: %w", text, ErrNoNumber)
	}

	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", text, err)
	}
	if !InRange(v) {
		return 0, fmt.Errorf("parse temperature %q: %w: %.2f", text, ErrOutOfRange, v)
	}
	return v, nil
}

// ParseDecimal parses a plain number that may use a decimal comma.
func ParseDecimal(text string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
}

// CollapseSpace trims s and replaces every whitespace run with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
