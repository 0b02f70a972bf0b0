package stores

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusclub/livefeed/internal/data/db"
)

func newTestKVStore(t *testing.T) (*LocalKVStore, string) {
	t.Helper()

	dataDir := t.TempDir()
	database, err := db.Open(dataDir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return NewLocalKVStore(database), dataDir
}

func TestLocalKVStore_SetGet(t *testing.T) {
	store, _ := newTestKVStore(t)
	ctx := context.Background()

	_, ok, err := store.GetString(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetString(ctx, "markset:read", `["a","b"]`))

	value, ok, err := store.GetString(ctx, "markset:read")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, value)
}

func TestLocalKVStore_Overwrite(t *testing.T) {
	store, _ := newTestKVStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, "pref:notifications-paused", "false"))
	require.NoError(t, store.SetString(ctx, "pref:notifications-paused", "true"))

	value, ok, err := store.GetString(ctx, "pref:notifications-paused")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", value)
}

func TestLocalKVStore_Delete(t *testing.T) {
	store, _ := newTestKVStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, "key", "value"))
	require.NoError(t, store.Delete(ctx, "key"))
	require.NoError(t, store.Delete(ctx, "key"), "deleting a missing key should not error")

	_, ok, err := store.GetString(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalKVStore_Keys(t *testing.T) {
	store, _ := newTestKVStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, "b", "2"))
	require.NoError(t, store.SetString(ctx, "a", "1"))
	require.NoError(t, store.SetString(ctx, "c", "3"))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestLocalKVStore_SurvivesReopen(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	database, err := db.Open(dataDir, db.DefaultOpenOptions())
	require.NoError(t, err)
	store := NewLocalKVStore(database)
	require.NoError(t, store.SetString(ctx, "markset:dismissed", `["x"]`))
	require.NoError(t, database.Close())

	database, err = db.Open(dataDir, db.DefaultOpenOptions())
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	value, ok, err := NewLocalKVStore(database).GetString(ctx, "markset:dismissed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["x"]`, value)
}

func TestLocalKVStore_MigrateFromJSON(t *testing.T) {
	store, dataDir := newTestKVStore(t)
	ctx := context.Background()

	legacy := map[string][]string{
		"markset:read":      {"m2", "m1"},
		"markset:dismissed": {"d1"},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	jsonPath := filepath.Join(dataDir, "marks.json")
	require.NoError(t, os.WriteFile(jsonPath, data, 0o644))

	// A key already present in the store wins over the legacy file.
	require.NoError(t, store.SetString(ctx, "markset:dismissed", `["d9"]`))

	require.NoError(t, store.MigrateFromJSON(ctx, dataDir))

	value, ok, err := store.GetString(ctx, "markset:read")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["m1","m2"]`, value, "legacy ids should be imported sorted")

	value, ok, err = store.GetString(ctx, "markset:dismissed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["d9"]`, value)

	_, err = os.Stat(jsonPath)
	assert.True(t, os.IsNotExist(err), "legacy file should be archived")
	_, err = os.Stat(jsonPath + ".migrated")
	assert.NoError(t, err)
}

func TestLocalKVStore_MigrateFromJSON_NoFile(t *testing.T) {
	store, dataDir := newTestKVStore(t)
	require.NoError(t, store.MigrateFromJSON(context.Background(), dataDir))
}
