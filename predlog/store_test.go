package predlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	xlsx, ok := store.(*XLSXStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), xlsx.Path())

	store, err = Open(Config{Backend: BackendSQLite, Dir: dir})
	require.NoError(t, err)
	_, ok = store.(*SQLiteStore)
	assert.True(t, ok)
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(dir, DefaultSQLiteFileName))

	custom := filepath.Join(dir, "elsewhere", "log.db")
	store, err = Open(Config{Backend: BackendSQLite, Dir: dir, SQLitePath: custom})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, custom)

	_, err = Open(Config{Backend: "parquet", Dir: dir})
	assert.Error(t, err)
}
