// Package led drives a board status LED from the viewer state.
package led

// Pattern is what the LED shows.
type Pattern string

// Patterns understood by every controller.
const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
	PatternFast  Pattern = "fast"
)

// Controller abstracts one LED across different boards.
type Controller interface {
	// Set switches the LED to pattern.
	Set(pattern Pattern) error
	// Name identifies the LED, empty when no LED is driven.
	Name() string
}
