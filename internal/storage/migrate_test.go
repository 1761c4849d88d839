package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateJournal_IsRepeatable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	version, err := MigrateJournal(dbPath, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// A second run finds nothing to apply.
	version, err = MigrateJournal(dbPath, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
