// Package version holds build identity and prints the startup banner.
// Grounded on the teacher's internal/version/version.go, trimmed to a
// one-line banner (the teacher's ASCII-art splash is cosmetic and not
// worth the line budget here).
package version

import (
	"fmt"
	"log"

	"github.com/ollamux/ollamux/theme"
)

var (
	Name    = "ollamux"
	Version = "v0.1.0"
	Commit  = "none"
	Date    = "unknown"
)

const (
	GithubHomeText = "github.com/ollamux/ollamux"
	GithubHomeURI  = "https://github.com/ollamux/ollamux"
)

// PrintBanner prints a one-line coloured startup banner. extendedInfo adds
// commit/build-date detail, used for --version.
func PrintBanner(extendedInfo bool, out *log.Logger) {
	link := theme.StyleURL(GithubHomeText)
	out.Println(theme.ColourSplash(fmt.Sprintf("%s %s", Name, theme.ColourVersion(Version))), "-", link)
	if extendedInfo {
		out.Printf("  commit: %s\n", Commit)
		out.Printf("   built: %s\n", Date)
	}
}
