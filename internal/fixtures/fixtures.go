// Package fixtures embeds offline sample payloads of the three upstream
// formats. They back the check command and the parser tests.
package fixtures

import (
	"embed"
)

//go:embed testdata
var files embed.FS

func mustRead(name string) string {
	b, err := files.ReadFile("testdata/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// GKDBayernHTML is a lake measurement page with a header row and mixed valid
// and invalid rows. Its newest value is 23.1 °C at 16:00 Europe/Berlin.
func GKDBayernHTML() string { return mustRead("gkd_bayern.html") }

// HydroOOEZRXP holds four blocks: SANR 5005 twice (air then water
// temperature), 12345 Attersee and 67890 Mondsee.
func HydroOOEZRXP() string { return mustRead("hydro_ooe.zrxp") }

// SalzburgOGD is a semicolon separated export with a byte order mark, CRLF
// line endings and separate date and time columns.
func SalzburgOGD() string { return mustRead("salzburg_ogd.txt") }
