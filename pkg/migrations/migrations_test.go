package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(postgresMigrations, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(postgresMigrations, "sql/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	body, err := fs.ReadFile(postgresMigrations, "sql/000001_command_audit_logs.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "command_audit_logs")
}
