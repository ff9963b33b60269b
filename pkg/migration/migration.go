// Package migration applies versioned SQL migrations and tracks them in the
// schema_migrations table.
package migration

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version string // Version prefix of the file name (e.g. "0001")
	Name    string // Migration name (e.g. "init")
	UpSQL   string // SQL for applying the migration
	DownSQL string // SQL for rolling back the migration
}

// MigrationStatus represents the status of a migration.
type MigrationStatus string

const (
	// StatusPending means the migration has not been applied.
	StatusPending MigrationStatus = "pending"
	// StatusApplied means the migration has been applied.
	StatusApplied MigrationStatus = "applied"
	// StatusFailed means the last attempt to apply the migration failed.
	StatusFailed MigrationStatus = "failed"
)

// MigrationRecord represents a migration in the tracking table.
type MigrationRecord struct {
	Version   string          `json:"version"`
	Name      string          `json:"name"`
	Status    MigrationStatus `json:"status"`
	AppliedAt *time.Time      `json:"appliedAt,omitempty"`
	Error     *string         `json:"error,omitempty"`
}

// Load reads migrations from dir in fsys. Files are named
// {version}_{name}.up.sql and {version}_{name}.down.sql; the result is
// ordered by version. Every version needs an up file, down files are optional.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileName := entry.Name()
		version, rest, ok := strings.Cut(fileName, "_")
		if !ok || version == "" {
			continue
		}

		var name string
		var up bool
		if before, found := strings.CutSuffix(rest, ".up.sql"); found {
			name, up = before, true
		} else if before, found := strings.CutSuffix(rest, ".down.sql"); found {
			name = before
		} else {
			continue
		}

		mig, exists := byVersion[version]
		if !exists {
			mig = &Migration{Version: version, Name: name}
			byVersion[version] = mig
		} else if mig.Name != name {
			return nil, fmt.Errorf("migration %s has conflicting names %q and %q", version, mig.Name, name)
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, fileName))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
		}
		if up {
			mig.UpSQL = string(data)
		} else {
			mig.DownSQL = string(data)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if strings.TrimSpace(mig.UpSQL) == "" {
			return nil, fmt.Errorf("migration %s_%s has no up SQL", mig.Version, mig.Name)
		}
		migrations = append(migrations, *mig)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// FileName returns the file name of a migration in the given direction.
// Format: {version}_{name}.{up|down}.sql
func FileName(version, name, direction string) string {
	return version + "_" + name + "." + direction + ".sql"
}

// Pending returns the migrations whose version is not in applied, in order.
func Pending(migrations []Migration, applied []MigrationRecord) []Migration {
	done := make(map[string]bool, len(applied))
	for _, record := range applied {
		if record.Status == StatusApplied {
			done[record.Version] = true
		}
	}

	var pending []Migration
	for _, mig := range migrations {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending
}

// splitSQL splits a SQL script into statements on semicolons. Line and
// block comments are dropped, and semicolons inside quoted strings or
// dollar-quoted bodies do not end a statement.
func splitSQL(sql string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      byte
		dollarTag  string
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		switch {
		case dollarTag != "":
			if strings.HasPrefix(sql[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end
				current.WriteByte('\n')
			}
			continue
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i = skipBlockComment(sql, i) - 1
			current.WriteByte(' ')
			continue
		case ch == '$':
			if end := strings.IndexByte(sql[i+1:], '$'); end >= 0 && isDollarTag(sql[i+1:i+1+end]) {
				dollarTag = sql[i : i+end+2]
				current.WriteString(dollarTag)
				i += end + 1
				continue
			}
		case ch == ';':
			flush()
			continue
		}

		current.WriteByte(ch)
	}
	flush()

	return statements
}

// skipBlockComment returns the index just past the block comment opening at
// start. Block comments nest; an unterminated one runs to the end.
func skipBlockComment(sql string, start int) int {
	depth := 0
	for i := start; i < len(sql)-1; i++ {
		switch {
		case sql[i] == '/' && sql[i+1] == '*':
			depth++
			i++
		case sql[i] == '*' && sql[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(sql)
}

func isDollarTag(tag string) bool {
	for i, r := range tag {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}
