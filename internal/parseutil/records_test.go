package parseutil

import (
	"testing"
	"time"

	"github.com/lox/laketemp/internal/models"
)

func TestSortDedup(t *testing.T) {
	base := time.Date(2025, 8, 7, 12, 0, 0, 0, time.UTC)
	in := []models.Record{
		{Timestamp: base.Add(2 * time.Hour), TemperatureC: 23.0},
		{Timestamp: base, TemperatureC: 21.0},
		{Timestamp: base.Add(time.Hour), TemperatureC: 22.0},
		{Timestamp: base, TemperatureC: 99.0},
	}

	got := SortDedup(in)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("records not strictly increasing at %d", i)
		}
	}
	if got[0].TemperatureC != 21.0 {
		t.Errorf("first occurrence should win, got %v", got[0].TemperatureC)
	}
	if in[0].TemperatureC != 23.0 {
		t.Error("input slice was modified")
	}
}

func TestSortDedup_Empty(t *testing.T) {
	if got := SortDedup(nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
