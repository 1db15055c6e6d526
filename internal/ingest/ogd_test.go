package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/fixtures"
	"github.com/lox/laketemp/internal/parseutil"
)

func TestNormalizeLakeKey(t *testing.T) {
	tests := map[string]string{
		"Obertrumer See":  "obertrumer",
		"Obertrumersee":   "obertrumer",
		"obertrumer":      "obertrumer",
		"Wolfgangsee":     "wolfgang",
		"Abersee":         "wolfgang",
		"Zeller See":      "zeller",
		"Zellersee":       "zeller",
		"Fuschlsee":       "fuschl",
		"Mattsee":         "matt",
		"Wallersee":       "waller",
		"Grabensee":       "graben",
		"Untertrumer See": "untertrumer",
		"Hintersee":       "hintersee",
		"Wörthersee":      "worthersee",
	}
	for in, want := range tests {
		if got := NormalizeLakeKey(in); got != want {
			t.Errorf("NormalizeLakeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectOGDColumns(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		check   func(OGDColumns) bool
		wantErr bool
	}{
		{
			name:    "dedicated temperature and date time",
			headers: []string{"Gewässer", "Messstelle", "Datum", "Uhrzeit", "Wassertemperatur [°C]"},
			check: func(c OGDColumns) bool {
				return c.Name == 0 && c.Station == 1 && c.Date == 2 && c.Time == 3 && c.Temp == 4 && c.Timestamp == -1
			},
		},
		{
			name:    "parameter value scheme with timestamp",
			headers: []string{"Stationsname", "Zeitpunkt", "Parameter", "Messwert", "Einheit"},
			check: func(c OGDColumns) bool {
				return c.Name == 0 && c.Timestamp == 1 && c.Parameter == 2 && c.Value == 3 && c.Unit == 4 && c.Temp == -1
			},
		},
		{name: "missing name", headers: []string{"Datum", "Wassertemperatur"}, wantErr: true},
		{name: "missing temperature", headers: []string{"See", "Datum", "Bemerkung"}, wantErr: true},
		{name: "missing time", headers: []string{"See", "Wassertemperatur"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, err := DetectOGDColumns(tt.headers)
			if tt.wantErr {
				if !IsParse(err) {
					t.Fatalf("err = %v, want parse error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectOGDColumns: %v", err)
			}
			if !tt.check(cols) {
				t.Errorf("columns = %+v", cols)
			}
		})
	}
}

func TestParseOGD_Fixture(t *testing.T) {
	records, err := ParseOGD(fixtures.SalzburgOGD())
	if err != nil {
		t.Fatalf("ParseOGD: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("got %d records, want 6: %+v", len(records), records)
	}
	for _, r := range records {
		if !parseutil.InRange(r.TemperatureC) {
			t.Errorf("out of range: %+v", r)
		}
	}

	latest := LatestByLake(records, nil)
	if got := latest["Mattsee"]; got.TemperatureC != 23.1 || got.Timestamp.Hour() != 16 {
		t.Errorf("Mattsee = %+v", got)
	}
	if got := latest["Fuschlsee"]; got.TemperatureC != 21.6 {
		t.Errorf("Fuschlsee = %+v", got)
	}
	if got := latest["Wolfgangsee"]; got.Timestamp.Hour() != 12 {
		t.Errorf("row without time should be placed at noon, got %v", got.Timestamp)
	}
	if _, ok := latest["Wallersee"]; ok {
		t.Error("row with '-' temperature should be skipped")
	}
}

func TestParseOGD_ParameterScheme(t *testing.T) {
	payload := "Stationsname;Zeitpunkt;Parameter;Messwert;Einheit\n" +
		"Mattsee;2025-08-07T16:00:00+02:00;WT;23,1;°C\n" +
		"Mattsee;2025-08-07T16:00:00+02:00;Pegel;412;cm\n" +
		"Fuschlsee;2025-08-07 15:00;Wassertemperatur;21,4;°C\n"

	records, err := ParseOGD(payload)
	if err != nil {
		t.Fatalf("ParseOGD: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].TemperatureC != 23.1 {
		t.Errorf("Mattsee = %v", records[0].TemperatureC)
	}
}

func TestParseOGD_Errors(t *testing.T) {
	if _, err := ParseOGD("nur eine spalte\nfoo"); !IsParse(err) {
		t.Errorf("single column header: err = %v", err)
	}
	if _, err := ParseOGD("See;Datum;Wassertemperatur\nMattsee;kein datum;22,0\n"); !IsNoData(err) {
		t.Errorf("no valid rows: err = %v", err)
	}
}

func TestLatestByLake_Targets(t *testing.T) {
	records, err := ParseOGD(fixtures.SalzburgOGD())
	if err != nil {
		t.Fatal(err)
	}
	got := LatestByLake(records, []string{"Obertrumersee", "Mattsee"})
	if len(got) != 2 {
		t.Fatalf("got %d lakes, want 2: %v", len(got), got)
	}
	if _, ok := got["Obertrumer See"]; !ok {
		t.Error("Obertrumer See should match the Obertrumersee target and keep the dataset name")
	}
}

func TestSalzburgOGDScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(fixtures.SalzburgOGD()))
	}))
	defer srv.Close()

	s := NewSalzburgOGDScraper(newTestSession(t), srv.URL, zerolog.Nop())

	rec, err := s.FetchLatestForLake(context.Background(), "Fuschl See")
	if err != nil {
		t.Fatalf("FetchLatestForLake: %v", err)
	}
	if rec.TemperatureC != 21.6 {
		t.Errorf("Fuschlsee = %v", rec.TemperatureC)
	}

	if _, err := s.FetchLatestForLake(context.Background(), "Hallstätter See"); !IsNoData(err) {
		t.Errorf("unknown lake: err = %v, want no data", err)
	}

	all, err := s.FetchAllLatest(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAllLatest: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d lakes, want 4", len(all))
	}
}
