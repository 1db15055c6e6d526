package dataset

import (
	"github.com/lox/laketemp/internal/models"
)

// Outcome classifies one refresh of a shared dataset.
type Outcome int

const (
	// OutcomeSuccess: the dataset was downloaded and mapped to members.
	OutcomeSuccess Outcome = iota
	// OutcomeSkipped: the upstream asked us to come back later (404, 429).
	OutcomeSkipped
	// OutcomeFailed: the download or parse failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Result is returned by Coordinator.Refresh. Readings always holds the
// mapping members should use after the refresh: the new one on success, the
// previous successful one otherwise.
type Result struct {
	Outcome  Outcome
	Readings map[string]models.TemperatureReading
	Err      error
}

func Success(readings map[string]models.TemperatureReading) Result {
	return Result{Outcome: OutcomeSuccess, Readings: readings}
}

func Skipped(previous map[string]models.TemperatureReading, err error) Result {
	return Result{Outcome: OutcomeSkipped, Readings: previous, Err: err}
}

func Failed(previous map[string]models.TemperatureReading, err error) Result {
	return Result{Outcome: OutcomeFailed, Readings: previous, Err: err}
}
