package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, migration.DefaultLockID, cfg.Migrations.LockID)
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "blogstore.yaml", `
database:
  host: db.internal
  port: 6432
  name: blog_prod
  sslmode: require
  max_conns: 20
log:
  level: debug
  file: /var/log/blogstore.log
  compress: true
transaction:
  max_wait: 500ms
  timeout: 10s
  max_retries: 3
  isolation: serializable
migrations:
  lock_id: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "blog_prod", cfg.Database.Name)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, int32(2), cfg.Database.MinConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Compress)
	assert.Equal(t, 100, cfg.Log.MaxSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Transaction.MaxWait)
	assert.Equal(t, 10*time.Second, cfg.Transaction.Timeout)
	assert.Equal(t, int64(42), cfg.Migrations.LockID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "blogstore.yaml", "database:\n  host: from-file\n")
	t.Setenv("BLOGSTORE_DATABASE_HOST", "from-env")
	t.Setenv("BLOGSTORE_DATABASE_URL", "postgres://u:p@h:5432/db")
	t.Setenv("BLOGSTORE_TRANSACTION_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, "postgres://u:p@h:5432/db", cfg.Database.URL)
	assert.Equal(t, 3*time.Second, cfg.Transaction.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		invalid bool
	}{
		{
			name: "missing explicit file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeConfig(t, "bad.yaml", "database: [") },
		},
		{
			name:    "unknown sslmode",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "database:\n  sslmode: sometimes\n") },
			invalid: true,
		},
		{
			name:    "min above max",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "database:\n  max_conns: 1\n  min_conns: 4\n") },
			invalid: true,
		},
		{
			name:    "unknown isolation",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "transaction:\n  isolation: snapshot\n") },
			invalid: true,
		},
		{
			name:    "unknown log level",
			path:    func(t *testing.T) string { return writeConfig(t, "c.yaml", "log:\n  level: loud\n") },
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, runtime.ErrValidation)
			}
		})
	}
}

func TestDatabaseConfig_Runtime(t *testing.T) {
	logger := zap.NewNop()
	d := DatabaseConfig{
		URL:      "postgres://localhost/blog",
		Host:     "h",
		Port:     1,
		Name:     "n",
		User:     "u",
		Password: "p",
		SSLMode:  "disable",
		MaxConns: 4,
		MinConns: 1,
		QueryLog: "debug",

		ConnectRetries: 2,
	}

	rc := d.Runtime(logger)
	assert.Equal(t, &runtime.Config{
		URL:      "postgres://localhost/blog",
		Host:     "h",
		Port:     1,
		Database: "n",
		User:     "u",
		Password: "p",
		SSLMode:  "disable",
		MaxConns: 4,
		MinConns: 1,
		Logger:   logger,
		LogLevel: "debug",

		ConnectRetries: 2,
	}, rc)
}

func TestTransactionConfig_TxOptions(t *testing.T) {
	opts, err := TransactionConfig{
		MaxWait:    time.Second,
		Timeout:    2 * time.Second,
		MaxRetries: -1,
		Isolation:  "repeatable_read",
	}.TxOptions()
	require.NoError(t, err)
	assert.Equal(t, builder.TxOptions{
		Isolation:  builder.RepeatableRead,
		MaxWait:    time.Second,
		Timeout:    2 * time.Second,
		MaxRetries: -1,
	}, opts)

	_, err = TransactionConfig{Isolation: "chaos"}.TxOptions()
	assert.Error(t, err)
}
