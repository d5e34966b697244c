package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds all the styles for the application
type Styles struct {
	Theme Theme

	// Layout
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Input     lipgloss.Style

	// Splash
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	// Turns
	Speaker      lipgloss.Style
	UserBubble   lipgloss.Style
	QuestBubble  lipgloss.Style
	FailedBubble lipgloss.Style
	ImageBadge   lipgloss.Style
	Notice       lipgloss.Style
	ErrorNotice  lipgloss.Style

	// UI Elements
	Help    lipgloss.Style
	Spinner lipgloss.Style
}

// NewStyles creates a new styles instance with the given theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{
		Theme: theme,
	}

	s.Header = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true).
		Padding(0, 1)

	s.StatusBar = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Padding(0, 1)

	s.Input = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	s.Title = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.Subtitle = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.Speaker = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.UserBubble = lipgloss.NewStyle().
		Foreground(theme.Text).
		Background(theme.Surface).
		Padding(0, 1)

	s.QuestBubble = lipgloss.NewStyle().
		Foreground(theme.Text).
		Padding(0, 1)

	s.FailedBubble = lipgloss.NewStyle().
		Foreground(theme.Error).
		Padding(0, 1)

	s.ImageBadge = lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Italic(true)

	s.Notice = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.ErrorNotice = lipgloss.NewStyle().
		Foreground(theme.Warning)

	s.Help = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.Spinner = lipgloss.NewStyle().
		Foreground(theme.Secondary)

	return s
}

// RenderSpeaker returns the caption shown above a bubble
func (s *Styles) RenderSpeaker(role string) string {
	switch role {
	case "user":
		return s.Speaker.Render("User")
	case "quest":
		return s.Speaker.Render("UrbanQuest")
	default:
		return s.Speaker.Render(role)
	}
}
