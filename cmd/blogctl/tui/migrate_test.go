package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	applied    []string
	rolledBack []string
	err        error
}

func (r *fakeRunner) Apply(_ context.Context, mig migration.Migration) error {
	r.applied = append(r.applied, mig.Version)
	return r.err
}

func (r *fakeRunner) Rollback(_ context.Context, mig migration.Migration) error {
	r.rolledBack = append(r.rolledBack, mig.Version)
	return r.err
}

var testMigrations = []migration.Migration{
	{Version: "0001", Name: "init"},
	{Version: "0002", Name: "indexes"},
	{Version: "0003", Name: "search"},
}

func testStatus() []migration.MigrationRecord {
	now := time.Now()
	return []migration.MigrationRecord{
		{Version: "0001", Name: "init", Status: migration.StatusApplied, AppliedAt: &now},
		{Version: "0002", Name: "indexes", Status: migration.StatusPending},
		{Version: "0003", Name: "search", Status: migration.StatusPending},
	}
}

func newTestModel(action Action, runner Runner, status []migration.MigrationRecord) MigrateModel {
	m := NewMigrateModel(context.Background(), action, runner, testMigrations, status)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(MigrateModel)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds keys to the model and runs the command of the last one.
func send(t *testing.T, m MigrateModel, keys ...string) (MigrateModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(MigrateModel)
	}
	return m, cmd
}

// drain executes migration commands until the model stops issuing them.
func drain(t *testing.T, m MigrateModel, cmd tea.Cmd) MigrateModel {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if _, ok := msg.(migrationExecutedMsg); !ok {
			break
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(MigrateModel)
	}
	return m
}

func TestMigrateModel_ApplyCursorItem(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestModel(ActionUp, runner, testStatus())

	// The applied migration cannot run upwards.
	m, _ = send(t, m, "enter")
	assert.Equal(t, ModeList, m.Mode())

	m, _ = send(t, m, "down", "enter")
	require.Equal(t, ModeConfirm, m.Mode())

	m, cmd := send(t, m, "left", "enter")
	require.Equal(t, ModeExecuting, m.Mode())
	require.NotNil(t, cmd)

	m = drain(t, m, cmd)
	assert.Equal(t, ModeComplete, m.Mode())
	assert.Equal(t, []string{"0002"}, runner.applied)

	item := m.list.Items()[1].(MigrationItem)
	assert.Equal(t, migration.StatusApplied, item.Record.Status)
}

func TestMigrateModel_MarkedItemsRunInOrder(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestModel(ActionUp, runner, testStatus())

	m, cmd := send(t, m, "down", "down", "space", "up", "space", "enter", "y")
	require.Equal(t, ModeExecuting, m.Mode())
	assert.Equal(t, 2, m.progress.Total)

	m = drain(t, m, cmd)
	assert.Equal(t, ModeComplete, m.Mode())
	assert.Equal(t, []string{"0002", "0003"}, runner.applied)
}

func TestMigrateModel_RollbackNewestFirst(t *testing.T) {
	status := testStatus()
	status[1].Status = migration.StatusApplied

	runner := &fakeRunner{}
	m := newTestModel(ActionDown, runner, status)

	m, _ = send(t, m, "space", "down", "space", "enter")
	require.Equal(t, ModeConfirm, m.Mode())

	m, cmd := send(t, m, "y")
	m = drain(t, m, cmd)
	assert.Equal(t, ModeComplete, m.Mode())
	assert.Equal(t, []string{"0002", "0001"}, runner.rolledBack)
}

func TestMigrateModel_CancelAndFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("syntax error")}
	m := newTestModel(ActionUp, runner, testStatus())

	m, _ = send(t, m, "down", "enter", "esc")
	assert.Equal(t, ModeList, m.Mode())
	assert.Empty(t, runner.applied)

	m, cmd := send(t, m, "enter", "y")
	m = drain(t, m, cmd)
	assert.Equal(t, ModeError, m.Mode())
	assert.EqualError(t, m.Err(), "syntax error")
	assert.Contains(t, m.View(), "Migration Failed")

	m, _ = send(t, m, "esc")
	assert.Equal(t, ModeList, m.Mode())
	assert.NoError(t, m.Err())
}

func TestFormatProgressBar(t *testing.T) {
	assert.Contains(t, FormatProgressBar(1, 4, 8), "1/4")
	assert.NotPanics(t, func() { FormatProgressBar(5, 4, 8) })
	assert.NotPanics(t, func() { FormatProgressBar(0, 0, 8) })
}

func TestLogView_KeepsLastEntries(t *testing.T) {
	l := NewLogView(2)
	l.AddLog("a")
	l.AddLog("b")
	l.AddLog("c")
	assert.Equal(t, []string{"b", "c"}, l.Logs)
}
