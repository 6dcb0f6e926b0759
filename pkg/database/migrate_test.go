package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestSchemaEnforcesSingleActiveAssignment(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/000001_help_queue.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ON help_queue_assignments (help_queue_id, ta_profile_id) WHERE is_active")
	assert.Contains(t, string(raw), "UNIQUE (tag, bucket)")
}

func TestChangeNotificationCarriesOnlyRowIdentity(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/000002_table_changes_notify.up.sql")
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "'id', row_id")
	assert.NotContains(t, body, "to_jsonb(NEW)")
	assert.NotContains(t, body, "to_jsonb(OLD)")
}
