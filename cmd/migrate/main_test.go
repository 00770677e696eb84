package main

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/backend/migrations"
)

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE TABLE a (id INT);
INSERT INTO a VALUES ('x;y');

-- trailing
CREATE INDEX idx ON a (id)`

	stmts := splitStatements(script)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES ('x;y')", stmts[1])
	assert.Equal(t, "CREATE INDEX idx ON a (id)", stmts[2])
}

func TestMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"postgres/001_init.up.sql":   {Data: []byte("")},
		"postgres/002_more.up.sql":   {Data: []byte("")},
		"postgres/001_init.down.sql": {Data: []byte("")},
		"postgres/002_more.down.sql": {Data: []byte("")},
	}

	up, err := migrationFiles(fsys, "postgres", "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres/001_init.up.sql", "postgres/002_more.up.sql"}, up)

	down, err := migrationFiles(fsys, "postgres", "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres/002_more.down.sql", "postgres/001_init.down.sql"}, down)

	_, err = migrationFiles(fsys, "sqlite", "up")
	assert.Error(t, err)
	_, err = migrationFiles(fsys, "postgres", "sideways")
	assert.Error(t, err)
	_, err = migrationFiles(fsys, "mysql", "up")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql"} {
		t.Run(dialect, func(t *testing.T) {
			up, err := migrationFiles(migrations.FS, dialect, "up")
			require.NoError(t, err)

			content, err := fs.ReadFile(migrations.FS, up[0])
			require.NoError(t, err)
			stmts := splitStatements(string(content))

			joined := strings.Join(stmts, "\n")
			for _, table := range []string{"users", "mailbox_accounts", "stored_messages", "tasks", "notes"} {
				assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" ")
			}
			for _, stmt := range stmts {
				assert.False(t, strings.HasPrefix(stmt, "--"))
			}
		})
	}
}
