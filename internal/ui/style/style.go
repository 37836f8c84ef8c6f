// Package style holds the colors and glyphs shared by the log handler and the renderers.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Accent = lipgloss.Color("#D97706")
	Muted  = lipgloss.Color("#6B7280")
	Green  = lipgloss.Color("#16A34A")
	Red    = lipgloss.Color("#DC2626")
	Yellow = lipgloss.Color("#EAB308")
)

// Glyphs.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Skip    = "-"
	Arrow   = "→"
	Dot     = "●"
)
