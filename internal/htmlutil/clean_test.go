package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestCellText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td>07.08.2025<br>16:00</td><td> 22,8&nbsp;°C </td><td><span>a</span>  <b>b</b></td></tr></table>`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cells := doc.Find("td")
	want := []string{"07.08.2025 16:00", "22,8 °C", "a b"}
	if cells.Length() != len(want) {
		t.Fatalf("cells = %d, want %d", cells.Length(), len(want))
	}
	cells.Each(func(i int, s *goquery.Selection) {
		if got := CellText(s); got != want[i] {
			t.Errorf("cell %d = %q, want %q", i, got, want[i])
		}
	})
}
