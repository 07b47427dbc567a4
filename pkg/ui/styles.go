package ui

import (
	"github.com/charmbracelet/lipgloss"
)

type StyleFunc func(...string) string

var (
	NormalFg    = NewFgStyle(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"})
	DimNormalFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

	BrightGrayFg    = NewFgStyle(lipgloss.AdaptiveColor{Light: "#847A85", Dark: "#979797"})
	DimBrightGrayFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#C2B8C2", Dark: "#4D4D4D"})

	GrayFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})

	GreenFg    = NewFgStyle(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})
	DimGreenFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#72D2B0", Dark: "#0B5137"})

	FuchsiaFg     = NewFgStyle(lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"})
	DullFuchsiaFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#F793FF", Dark: "#AD58B4"})

	RedFg = NewFgStyle(lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"})

	// instagram color palette
	// https://www.color-hex.com/color-palette/44340
	InstaMagenta = NewFgStyle(lipgloss.AdaptiveColor{Light: "#d62976", Dark: "#d62976"})
	InstaPurple  = NewFgStyle(lipgloss.AdaptiveColor{Light: "#962fbf", Dark: "#962fbf"})

	TabColor         = InstaPurple
	SelectedTabColor = InstaMagenta

	// List item colors
	ItemPrimaryFocused     = FuchsiaFg
	ItemSecondaryFocused   = DullFuchsiaFg
	ItemPrimaryUnfocused   = NormalFg
	ItemSecondaryUnfocused = BrightGrayFg
	ItemPending            = DimBrightGrayFg

	AppStyle = lipgloss.NewStyle().Padding(1, 2)
)

// NewFgStyle returns a render func with a foreground color only
func NewFgStyle(c lipgloss.TerminalColor) StyleFunc {
	return lipgloss.NewStyle().Foreground(c).Render
}
