package report

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorFull        = lipgloss.Color("#FFD700")
	colorFast        = lipgloss.Color("#00BFFF")
	colorIncremental = lipgloss.Color("#00E676")
	colorDanger      = lipgloss.Color("#FF5252")
	colorMuted       = lipgloss.Color("#8C8C8C")
)

var (
	styleBadge = lipgloss.NewStyle().Bold(true)

	styleLabel = lipgloss.NewStyle().Foreground(colorMuted)

	styleHash = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

var modeColors = map[string]lipgloss.Color{
	"FULL":        colorFull,
	"FAST":        colorFast,
	"INCREMENTAL": colorIncremental,
}

var stateColors = map[string]lipgloss.Color{
	"valid":   colorIncremental,
	"invalid": colorFull,
	"absent":  colorMuted,
}

// ModeBadge renders a build mode
func ModeBadge(mode string) string {
	c, ok := modeColors[mode]
	if !ok {
		c = colorMuted
	}

	return styleBadge.Foreground(c).Render(mode)
}

// StateBadge renders a cache state
func StateBadge(state string) string {
	c, ok := stateColors[state]
	if !ok {
		c = colorDanger
	}

	return styleBadge.Foreground(c).Render(state)
}

// ResultBadge renders a build outcome
func ResultBadge(success bool) string {
	if success {
		return styleBadge.Foreground(colorIncremental).Render("ok")
	}

	return styleBadge.Foreground(colorDanger).Render("failed")
}

// Label renders a field name
func Label(s string) string {
	return styleLabel.Render(s)
}

// ShortHash renders the first 12 characters of a digest
func ShortHash(h string) string {
	if h == "" {
		return styleHash.Render("-")
	}

	if len(h) > 12 {
		h = h[:12]
	}

	return styleHash.Render(h)
}
