package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/wagate/gateway/internal/models"
)

// Shared styles for the CLI package
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	stateBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
)

func stateColor(state models.SessionState) lipgloss.Color {
	switch state {
	case models.SessionStateReady:
		return lipgloss.Color("#10b981")
	case models.SessionStateAuthenticated, models.SessionStateInitializing:
		return lipgloss.Color("#3b82f6")
	case models.SessionStateAwaitingScan:
		return lipgloss.Color("#f59e0b")
	case models.SessionStateAuthFailed, models.SessionStateDisconnected:
		return lipgloss.Color("#ef4444")
	default:
		return lipgloss.Color("#6b7280")
	}
}

func stateBadge(state models.SessionState) string {
	return stateBadgeStyle.Background(stateColor(state)).Render(string(state))
}
