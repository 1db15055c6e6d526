package parseutil

import (
	"sort"

	"github.com/lox/laketemp/internal/models"
)

// SortDedup orders records ascending by timestamp and drops later records that
// share an exact instant with an earlier one. The input slice is not modified.
func SortDedup(records []models.Record) []models.Record {
	sorted := make([]models.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0]
	for i, r := range sorted {
		if i > 0 && r.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}
