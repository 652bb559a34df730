// Package ui provides the Emonk CLI design system: styles, symbols, and
// terminal-aware helpers. All CLI visual output goes through these
// definitions for consistency.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// BrandEmoji is the Emonk logo.
const BrandEmoji = "\U0001F9D8" // 🧘

// Colors — ANSI 4-bit for maximum terminal compatibility.
// lipgloss/termenv handles degradation automatically.
var (
	ColorCyan   = lipgloss.Color("6")
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorRed    = lipgloss.Color("1")
)

// Semantic styles.
var (
	StyleBold     = lipgloss.NewStyle().Bold(true)
	StyleDim      = lipgloss.NewStyle().Faint(true)
	StyleBoldCyan = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	StyleBoldRed  = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleError   = lipgloss.NewStyle().Foreground(ColorRed)

	StyleLabel = lipgloss.NewStyle().Bold(true).Width(10)
	StyleHint  = lipgloss.NewStyle().Faint(true)
)

// Unicode status symbols.
const (
	SymbolCheck = "✓"
	SymbolCross = "✗"
	SymbolDot   = "●"
	SymbolArrow = "→"
)

// ColorEnabled returns whether stderr is a TTY that supports color.
// Respects NO_COLOR (https://no-color.org/).
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// NoColor forces the default renderer to plain output. Used by tests and
// when NO_COLOR is set.
func NoColor() {
	lipgloss.DefaultRenderer().SetColorProfile(termenv.Ascii)
}
