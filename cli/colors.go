package main

import (
	"github.com/fatih/color"
)

// palette holds the printers used for terminal output. Each is a no-op
// colorizer when color is disabled.
type palette struct {
	err    *color.Color
	warn   *color.Color
	ok     *color.Color
	detail *color.Color
}

func newPalette(useColor bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
		ok:     color.New(color.FgGreen),
		detail: color.New(color.FgHiBlack),
	}
	if !useColor {
		for _, c := range []*color.Color{p.err, p.warn, p.ok, p.detail} {
			c.DisableColor()
		}
	}
	return p
}

// ShouldUseColor determines if color output should be used.
// color.NoColor already folds in NO_COLOR and whether stdout is a terminal.
func ShouldUseColor(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	return !color.NoColor
}
