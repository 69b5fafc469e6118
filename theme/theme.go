// Package theme provides the colour palette used by the styled logger and
// the startup banner. Grounded on the teacher's theme/default.go, trimmed
// to the colours this system's three-state health machine and streaming
// events actually use.
package theme

import "github.com/pterm/pterm"

// Theme defines the colour scheme used by logger.StyledLogger.
type Theme struct {
	Endpoint     *pterm.Style
	Counts       *pterm.Style
	Muted        *pterm.Style
	Reliable     *pterm.Style
	Unreliable   *pterm.Style
	SecondChance *pterm.Style
	Success      *pterm.Style
	Failure      *pterm.Style
}

// Default returns the default application theme.
func Default() *Theme {
	return &Theme{
		Endpoint:     pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Counts:       pterm.NewStyle(pterm.FgMagenta),
		Muted:        pterm.NewStyle(pterm.FgGray),
		Reliable:     pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Unreliable:   pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		SecondChance: pterm.NewStyle(pterm.FgLightYellow),
		Success:      pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Failure:      pterm.NewStyle(pterm.FgRed, pterm.Bold),
	}
}

// GetTheme returns the named theme, falling back to Default for any
// unrecognised name.
func GetTheme(name string) *Theme {
	switch name {
	default:
		return Default()
	}
}

// ColourSplash colours the startup banner text.
func ColourSplash(message ...any) string {
	return pterm.LightGreen(message...)
}

// ColourVersion colours the version string in the startup banner.
func ColourVersion(message ...any) string {
	return pterm.LightYellow(message...)
}

// StyleURL colours URLs printed in the startup banner.
func StyleURL(message ...any) string {
	return pterm.LightBlue(message...)
}
