// Package output prints styled blogctl messages, tables and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/marshallshelly/blogstore/pkg/migration"
)

// Palette shared by the line printer and the interactive UI.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	successStyle = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(ColorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
)

// Out receives everything this package prints.
var Out io.Writer = os.Stdout

func line(icon lipgloss.Style, mark, format string, args ...any) {
	_, _ = fmt.Fprintf(Out, "%s %s\n", icon.Render(mark), fmt.Sprintf(format, args...))
}

// Success prints a success message
func Success(format string, args ...any) { line(successStyle, "✓", format, args...) }

// Warning prints a warning message
func Warning(format string, args ...any) { line(warningStyle, "⚠", format, args...) }

// Error prints an error message
func Error(format string, args ...any) { line(errorStyle, "✗", format, args...) }

// Info prints an info message
func Info(format string, args ...any) { line(infoStyle, "ℹ", format, args...) }

// Muted prints a muted message
func Muted(format string, args ...any) {
	_, _ = fmt.Fprintln(Out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints a section header underlined to the title's width.
func Section(title string) {
	_, _ = fmt.Fprintf(Out, "\n%s\n%s\n\n",
		primaryStyle.Render(title),
		mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))),
	)
}

var statusIcons = map[migration.MigrationStatus]string{
	migration.StatusApplied: "✓",
	migration.StatusPending: "○",
	migration.StatusFailed:  "✗",
}

// StatusStyle is the style migration records of status are drawn in.
func StatusStyle(status migration.MigrationStatus) lipgloss.Style {
	switch status {
	case migration.StatusApplied:
		return successStyle
	case migration.StatusPending:
		return warningStyle
	case migration.StatusFailed:
		return errorStyle
	}
	return mutedStyle
}

// StatusIcon returns a colored icon for a migration status.
func StatusIcon(status migration.MigrationStatus) string {
	icon, ok := statusIcons[status]
	if !ok {
		icon = "•"
	}
	return StatusStyle(status).Render(icon)
}

// JSON writes v as indented JSON.
func JSON(v any) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes rows under headers in aligned columns.
func Table(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(rule, "\t"))

	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
