package cli

import (
	"fmt"
	"strings"
)

// Bar renders percent (0-100) as a fixed-width usage bar:
//
//	[████████░░░░░░░░░░░░]  40.0%
//
// Values outside 0-100 are clamped for the bar but printed as given.
func Bar(percent float64, width int) string {
	if width <= 0 {
		width = 20
	}

	clamped := percent
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 100 {
		clamped = 100
	}
	filled := int(float64(width) * clamped / 100)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, percent)
}
