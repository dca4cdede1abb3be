package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/knoldeck/internal/gateway"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bd93f9"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")).Bold(true)
	keyStyle   = lipgloss.NewStyle().Bold(true)
)

var cardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#44475a")).
	Padding(1, 4).
	Align(lipgloss.Center)

var syncColors = map[gateway.Status]string{
	gateway.StatusLocal:    "#6272a4",
	gateway.StatusSyncing:  "#f1fa8c",
	gateway.StatusSynced:   "#50fa7b",
	gateway.StatusError:    "#ff5555",
	gateway.StatusConflict: "#ffb86c",
}

// renderSync renders the sync indicator as a coloured dot and label.
func renderSync(s gateway.Status) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(syncColors[s])).
		Render("● " + s.String())
}
