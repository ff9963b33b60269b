package tui

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/marshallshelly/blogstore/pkg/migration"
)

// Choice is the outcome of a key press in a ConfirmationDialog.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceYes
	ChoiceNo
)

// ConfirmationDialog represents a yes/no confirmation dialog.
type ConfirmationDialog struct {
	Title       string
	Message     string
	YesSelected bool
}

// NewConfirmationDialog creates a dialog with No preselected.
func NewConfirmationDialog(title, message string) ConfirmationDialog {
	return ConfirmationDialog{Title: title, Message: message}
}

// Update moves the selection and reports the choice once enter is pressed.
func (d *ConfirmationDialog) Update(msg tea.KeyMsg) Choice {
	switch msg.String() {
	case "left", "h":
		d.YesSelected = true
	case "right", "l":
		d.YesSelected = false
	case "y":
		return ChoiceYes
	case "n", "esc", "q":
		return ChoiceNo
	case "enter":
		if d.YesSelected {
			return ChoiceYes
		}
		return ChoiceNo
	}
	return ChoiceNone
}

// View renders the dialog in a box.
func (d ConfirmationDialog) View() string {
	yes, no := inactiveButtonStyle, activeButtonStyle
	if d.YesSelected {
		yes, no = activeButtonStyle, inactiveButtonStyle
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Left, yes.Render("Yes"), "  ", no.Render("No"))
	help := helpStyle.Render(strings.Join([]string{
		FormatKey("←/→", "choose"),
		FormatKey("enter", "confirm"),
		FormatKey("esc", "cancel"),
	}, " • "))

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(d.Title),
		d.Message,
		"",
		buttons,
		help,
	))
}

// MigrationItem is one row of the migration list.
type MigrationItem struct {
	Record   migration.MigrationRecord
	Selected bool
}

func (i MigrationItem) FilterValue() string { return i.Record.Version + " " + i.Record.Name }

func (i MigrationItem) Title() string {
	mark := "[ ]"
	if i.Selected {
		mark = "[x]"
	}
	return fmt.Sprintf("%s %s %s - %s", mark, FormatStatus(i.Record.Status), i.Record.Version, i.Record.Name)
}

func (i MigrationItem) Description() string {
	switch {
	case i.Record.Error != nil:
		return errorStyle.Render("Error: " + *i.Record.Error)
	case i.Record.AppliedAt != nil:
		return mutedStyle.Render("Applied: " + i.Record.AppliedAt.Format("2006-01-02 15:04:05"))
	default:
		return mutedStyle.Render("Not applied")
	}
}

// MigrationItemDelegate renders MigrationItems on two lines.
type MigrationItemDelegate struct{}

func (d MigrationItemDelegate) Height() int                             { return 2 }
func (d MigrationItemDelegate) Spacing() int                            { return 1 }
func (d MigrationItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d MigrationItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(MigrationItem)
	if !ok {
		return
	}

	style, cursor := itemStyle, "  "
	if index == m.Index() {
		style, cursor = cursorItemStyle, "▸ "
	}
	_, _ = fmt.Fprint(w, style.Render(cursor+i.Title()+"\n  "+i.Description()))
}

// ProgressView shows how many migrations of a run have finished.
type ProgressView struct {
	Current int
	Total   int
	Message string
}

func (p ProgressView) View() string {
	lines := []string{titleStyle.Render("Migration Progress")}
	if p.Message != "" {
		lines = append(lines, infoStyle.Render(p.Message), "")
	}
	lines = append(lines, FormatProgressBar(p.Current, p.Total, 40))
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// LogView is a bounded tail of run events.
type LogView struct {
	Logs   []string
	MaxLen int
}

func NewLogView(maxLen int) LogView {
	return LogView{MaxLen: maxLen}
}

// AddLog appends entry and drops the oldest lines past MaxLen.
func (l *LogView) AddLog(entry string) {
	l.Logs = append(l.Logs, entry)
	if extra := len(l.Logs) - l.MaxLen; l.MaxLen > 0 && extra > 0 {
		l.Logs = slices.Delete(l.Logs, 0, extra)
	}
}

func (l LogView) View() string {
	if len(l.Logs) == 0 {
		return mutedStyle.Render("No logs")
	}
	bullet := mutedStyle.Render("• ")
	lines := make([]string, len(l.Logs))
	for i, entry := range l.Logs {
		lines[i] = bullet + entry
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
