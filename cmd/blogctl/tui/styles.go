package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/marshallshelly/blogstore/cmd/blogctl/output"
	"github.com/marshallshelly/blogstore/pkg/migration"
)

func fg(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	titleStyle   = fg(output.ColorPrimary).Bold(true).MarginBottom(1)
	successStyle = fg(output.ColorSuccess).Bold(true)
	errorStyle   = fg(output.ColorDanger).Bold(true)
	infoStyle    = fg(output.ColorPrimary)
	mutedStyle   = fg(output.ColorMuted)
	helpStyle    = mutedStyle.MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(output.ColorMuted).
			Padding(1, 2)

	cursorItemStyle = infoStyle.Bold(true).PaddingLeft(2)
	itemStyle       = lipgloss.NewStyle().PaddingLeft(4)

	buttonStyle       = lipgloss.NewStyle().Padding(0, 3)
	activeButtonStyle = buttonStyle.Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(output.ColorPrimary)
	inactiveButtonStyle = buttonStyle.Foreground(output.ColorMuted)
)

// FormatStatus renders a status with its icon in the status color.
func FormatStatus(status migration.MigrationStatus) string {
	return output.StatusIcon(status) + " " + output.StatusStyle(status).Render(string(status))
}

// FormatProgressBar renders current/total as a bar of the given width
// followed by the count.
func FormatProgressBar(current, total, width int) string {
	width = max(width, 0)
	filled := 0
	if total > 0 {
		filled = min(max(width*current/total, 0), width)
	}
	bar := infoStyle.Render(strings.Repeat("━", filled)) + mutedStyle.Render(strings.Repeat("━", width-filled))
	if total <= 0 {
		return bar
	}
	return bar + " " + infoStyle.Render(fmt.Sprintf("%d/%d", current, total))
}

// FormatKey renders one help entry.
func FormatKey(key, description string) string {
	return infoStyle.Render(key) + " " + mutedStyle.Render(description)
}
