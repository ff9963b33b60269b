// Package tui implements the interactive migration screen of blogctl.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/marshallshelly/blogstore/pkg/migration"
)

// Action is the direction a migration run goes.
type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
)

// Runner applies and rolls back single migrations. *migration.Executor
// implements it and takes the migration lock per call.
type Runner interface {
	Apply(ctx context.Context, mig migration.Migration) error
	Rollback(ctx context.Context, mig migration.Migration) error
}

// Mode is the screen the model shows.
type Mode int

const (
	ModeList Mode = iota
	ModeConfirm
	ModeExecuting
	ModeComplete
	ModeError
)

// MigrateModel is the Bubbletea model for interactive migrations.
type MigrateModel struct {
	ctx          context.Context
	mode         Mode
	action       Action
	runner       Runner
	migrations   map[string]migration.Migration
	list         list.Model
	confirmation ConfirmationDialog
	progress     ProgressView
	logs         LogView
	queue        []migration.Migration
	err          error
	width        int
	height       int
}

// NewMigrateModel builds the model from the current status of every
// migration.
func NewMigrateModel(ctx context.Context, action Action, runner Runner, migrations []migration.Migration, status []migration.MigrationRecord) MigrateModel {
	byVersion := make(map[string]migration.Migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.Version] = mig
	}

	items := make([]list.Item, len(status))
	for i, record := range status {
		items[i] = MigrationItem{Record: record}
	}

	l := list.New(items, MigrationItemDelegate{}, 0, 0)
	l.Title = fmt.Sprintf("Migrations (%s)", action)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return MigrateModel{
		ctx:        ctx,
		mode:       ModeList,
		action:     action,
		runner:     runner,
		migrations: byVersion,
		list:       l,
		logs:       NewLogView(10),
	}
}

// Mode returns the current screen.
func (m MigrateModel) Mode() Mode { return m.mode }

// Err returns the error that stopped the run, if any.
func (m MigrateModel) Err() error { return m.err }

func (m MigrateModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

type migrationExecutedMsg struct {
	version string
	err     error
}

func (m MigrateModel) executeCmd(mig migration.Migration) tea.Cmd {
	return func() tea.Msg {
		var err error
		if m.action == ActionUp {
			err = m.runner.Apply(m.ctx, mig)
		} else {
			err = m.runner.Rollback(m.ctx, mig)
		}
		return migrationExecutedMsg{version: mig.Version, err: err}
	}
}

// runnable reports whether the record can be executed in the model's
// direction. Failed migrations may be retried upwards.
func (m MigrateModel) runnable(record migration.MigrationRecord) bool {
	if m.action == ActionUp {
		return record.Status != migration.StatusApplied
	}
	return record.Status == migration.StatusApplied
}

// plan returns the migrations to run: the marked items, or the item under
// the cursor when nothing is marked. Up runs oldest first, down newest first.
func (m MigrateModel) plan() []migration.Migration {
	var versions []string
	for _, item := range m.list.Items() {
		if mi := item.(MigrationItem); mi.Selected {
			versions = append(versions, mi.Record.Version)
		}
	}
	if len(versions) == 0 {
		if mi, ok := m.list.SelectedItem().(MigrationItem); ok && m.runnable(mi.Record) {
			versions = append(versions, mi.Record.Version)
		}
	}

	slices.Sort(versions)
	if m.action == ActionDown {
		slices.Reverse(versions)
	}

	plan := make([]migration.Migration, 0, len(versions))
	for _, v := range versions {
		if mig, ok := m.migrations[v]; ok {
			plan = append(plan, mig)
		}
	}
	return plan
}

func (m *MigrateModel) toggle() {
	idx := m.list.Index()
	item, ok := m.list.SelectedItem().(MigrationItem)
	if !ok || !m.runnable(item.Record) {
		return
	}
	item.Selected = !item.Selected
	m.list.SetItem(idx, item)
}

func (m *MigrateModel) markDone(version string) {
	status := migration.StatusApplied
	if m.action == ActionDown {
		status = migration.StatusPending
	}
	for i, item := range m.list.Items() {
		mi := item.(MigrationItem)
		if mi.Record.Version == version {
			mi.Record.Status = status
			mi.Record.Error = nil
			mi.Selected = false
			m.list.SetItem(i, mi)
		}
	}
}

func (m MigrateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case migrationExecutedMsg:
		if msg.err != nil {
			m.mode = ModeError
			m.err = msg.err
			m.logs.AddLog(errorStyle.Render("Failed: " + msg.version))
			return m, nil
		}

		m.markDone(msg.version)
		m.logs.AddLog(successStyle.Render("✓ Completed: " + msg.version))
		m.progress.Current++
		m.queue = m.queue[1:]

		if len(m.queue) == 0 {
			m.mode = ModeComplete
			return m, nil
		}
		next := m.queue[0]
		m.progress.Message = fmt.Sprintf("Executing: %s - %s", next.Version, next.Name)
		return m, m.executeCmd(next)

	case tea.KeyMsg:
		switch m.mode {
		case ModeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case " ":
				m.toggle()
				return m, nil
			case "enter":
				m.queue = m.plan()
				if len(m.queue) == 0 {
					return m, nil
				}
				names := make([]string, len(m.queue))
				for i, mig := range m.queue {
					names[i] = mig.Version + " - " + mig.Name
				}
				m.confirmation = NewConfirmationDialog(
					fmt.Sprintf("Confirm migrate %s", m.action),
					fmt.Sprintf("Run %s on %d migration(s):\n%s", m.action, len(m.queue), strings.Join(names, "\n")),
				)
				m.mode = ModeConfirm
				return m, nil
			}

		case ModeConfirm:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			switch m.confirmation.Update(msg) {
			case ChoiceYes:
				m.mode = ModeExecuting
				first := m.queue[0]
				m.progress = ProgressView{
					Total:   len(m.queue),
					Message: fmt.Sprintf("Executing: %s - %s", first.Version, first.Name),
				}
				return m, m.executeCmd(first)
			case ChoiceNo:
				m.queue = nil
				m.mode = ModeList
			}
			return m, nil

		case ModeExecuting:
			return m, nil

		case ModeComplete, ModeError:
			switch msg.String() {
			case "ctrl+c", "q", "enter":
				return m, tea.Quit
			case "esc":
				m.mode = ModeList
				m.err = nil
				m.queue = nil
				return m, nil
			}
			return m, nil
		}
	}

	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m MigrateModel) View() string {
	place := func(s string) string {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
	}

	switch m.mode {
	case ModeList:
		help := helpStyle.Render(
			FormatKey("↑/↓", "navigate") + " • " +
				FormatKey("space", "mark") + " • " +
				FormatKey("enter", "run") + " • " +
				FormatKey("/", "filter") + " • " +
				FormatKey("q", "quit"),
		)
		return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), help)

	case ModeConfirm:
		return place(m.confirmation.View())

	case ModeExecuting:
		return place(lipgloss.JoinVertical(lipgloss.Left, m.progress.View(), "", m.logs.View()))

	case ModeComplete:
		return place(boxStyle.Render(
			titleStyle.Render("Migration Complete") + "\n\n" +
				successStyle.Render(fmt.Sprintf("Executed %d migration(s)", m.progress.Total)) + "\n\n" +
				helpStyle.Render(FormatKey("esc", "back")+" • "+FormatKey("enter/q", "exit")),
		))

	case ModeError:
		return place(boxStyle.Render(
			titleStyle.Render("Migration Failed") + "\n\n" +
				errorStyle.Render(m.err.Error()) + "\n\n" +
				m.logs.View() + "\n" +
				helpStyle.Render(FormatKey("esc", "back")+" • "+FormatKey("enter/q", "exit")),
		))
	}

	return ""
}

// RunMigrateUI runs the interactive migration screen until the user quits.
// It returns the error of a failed migration, if one stopped the run.
func RunMigrateUI(ctx context.Context, action Action, runner Runner, migrations []migration.Migration, status []migration.MigrationRecord) error {
	final, err := tea.NewProgram(NewMigrateModel(ctx, action, runner, migrations, status), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(MigrateModel); ok {
		return m.err
	}
	return nil
}
