package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme represents a color theme
type Theme struct {
	Name      string
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Surface   lipgloss.AdaptiveColor
	Text      lipgloss.AdaptiveColor
	TextDim   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
}

// Default theme, light grey bubbles on a plain background
var DefaultTheme = Theme{
	Name:      "default",
	Primary:   lipgloss.AdaptiveColor{Light: "#111111", Dark: "#F5F5F5"},
	Secondary: lipgloss.AdaptiveColor{Light: "#E07A1F", Dark: "#F4A259"},
	Surface:   lipgloss.AdaptiveColor{Light: "#ECECEC", Dark: "#2B2B2B"},
	Text:      lipgloss.AdaptiveColor{Light: "#111111", Dark: "#E6E6E6"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#808080", Dark: "#8A8A8A"},
	Border:    lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#444444"},
	Success:   lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"},
	Warning:   lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"},
	Error:     lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"},
}

// Night theme for dark terminals
var NightTheme = Theme{
	Name:      "night",
	Primary:   lipgloss.AdaptiveColor{Light: "#81A1C1", Dark: "#88C0D0"},
	Secondary: lipgloss.AdaptiveColor{Light: "#B48EAD", Dark: "#B48EAD"},
	Surface:   lipgloss.AdaptiveColor{Light: "#3B4252", Dark: "#3B4252"},
	Text:      lipgloss.AdaptiveColor{Light: "#ECEFF4", Dark: "#D8DEE9"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#616E88"},
	Border:    lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Success:   lipgloss.AdaptiveColor{Light: "#A3BE8C", Dark: "#A3BE8C"},
	Warning:   lipgloss.AdaptiveColor{Light: "#EBCB8B", Dark: "#EBCB8B"},
	Error:     lipgloss.AdaptiveColor{Light: "#BF616A", Dark: "#BF616A"},
}

// GetTheme returns a theme by name
func GetTheme(name string) Theme {
	switch name {
	case "night":
		return NightTheme
	default:
		return DefaultTheme
	}
}
