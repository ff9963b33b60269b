package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marshallshelly/blogstore/cmd/blogctl/output"
	"github.com/marshallshelly/blogstore/internal/blog"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versions(recs []migration.MigrationRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Version
	}
	return out
}

func TestUpPlan(t *testing.T) {
	status := []migration.MigrationRecord{
		{Version: "0001", Status: migration.StatusApplied},
		{Version: "0002", Status: migration.StatusFailed},
		{Version: "0003", Status: migration.StatusPending},
		{Version: "0004", Status: migration.StatusPending},
	}

	assert.Equal(t, []string{"0002", "0003", "0004"}, versions(upPlan(status, 0)))
	assert.Equal(t, []string{"0002"}, versions(upPlan(status, 1)))
	assert.Empty(t, upPlan(status[:1], 0))
}

func TestDownPlan(t *testing.T) {
	status := []migration.MigrationRecord{
		{Version: "0001", Status: migration.StatusApplied},
		{Version: "0002", Status: migration.StatusApplied},
		{Version: "0003", Status: migration.StatusApplied},
		{Version: "0004", Status: migration.StatusPending},
	}

	tests := []struct {
		name   string
		steps  int
		target string
		want   []string
	}{
		{"default one step", 0, "", []string{"0003"}},
		{"two steps", 2, "", []string{"0003", "0002"}},
		{"more steps than applied", 9, "", []string{"0003", "0002", "0001"}},
		{"target", 1, "0001", []string{"0003", "0002"}},
		{"target is newest", 1, "0003", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, versions(downPlan(status, tt.steps, tt.target)))
		})
	}

	assert.Empty(t, downPlan(nil, 1, ""))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blogstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://file/db\nlog:\n  level: warn\n"), 0o600))

	prevConfig, prevDB, prevVerbose := configPath, dbURL, verbose
	t.Cleanup(func() { configPath, dbURL, verbose = prevConfig, prevDB, prevVerbose })

	configPath = path
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)

	dbURL = "postgres://flag/db"
	verbose = true
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := output.Out
	output.Out = &buf
	t.Cleanup(func() { output.Out = prev })

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, printStatus([]migration.MigrationRecord{
		{Version: "0001", Name: "init", Status: migration.StatusApplied, AppliedAt: &at},
		{Version: "0002", Name: "search", Status: migration.StatusFailed},
		{Version: "0003", Name: "extra", Status: migration.StatusPending},
	}))

	out := buf.String()
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "2026-01-02 03:04:05")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "Summary: 1 applied, 1 pending, 1 failed")
}

func TestContentRow(t *testing.T) {
	published := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	row := contentRow(blog.Content{
		ID:           7,
		Slug:         "hello",
		Title:        "Hello",
		LikeCount:    2,
		CommentCount: 1,
		PublishedAt:  &published,
		Author:       &blog.User{Username: "ada"},
	})
	assert.Equal(t, []string{"7", "hello", "Hello", "ada", "-", "2026-03-01", "2", "1"}, row)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"recount"},
		{"stats"},
		{"content", "list"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	for _, flag := range []string{"config", "db", "json", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
