package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/k3a/html2text"
)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// CellText returns the readable text of a table cell with whitespace collapsed.
// Line breaks inside the cell (<br>) become single spaces, so a cell holding
// "07.08.2025<br>16:00" reads as "07.08.2025 16:00".
func CellText(sel *goquery.Selection) string {
	inner, err := sel.Html()
	if err != nil {
		return strings.Join(strings.Fields(sel.Text()), " ")
	}
	return strings.Join(strings.Fields(ToText(inner)), " ")
}
