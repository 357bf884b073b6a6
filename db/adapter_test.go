package db

import (
	"path/filepath"
	"testing"

	"github.com/metrocity/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(config.StoreConfig{Mode: ModeSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, sqlDB.Ping())
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(config.StoreConfig{Mode: ModeSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE t (id INTEGER)").Error)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.StoreConfig{Mode: "embedded_xml"})
	assert.ErrorContains(t, err, "unknown mode")

	_, err = Open(config.StoreConfig{Mode: ModeMemory})
	assert.Error(t, err)
}
