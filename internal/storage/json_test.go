package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJSONStore(t *testing.T) *JSONStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewJSONStore(Config{Path: path, CacheTTL: "1ms"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJSONStoreCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	store, err := NewJSONStore(Config{Path: path})
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestJSONStoreRoundTrip(t *testing.T) {
	store := newTestJSONStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "retry_queue")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "retry_queue", []byte(`{"tickets":{}}`)))

	value, err := store.Get(ctx, "retry_queue")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tickets":{}}`, string(value))

	require.NoError(t, store.Delete(ctx, "retry_queue"))
	_, err = store.Get(ctx, "retry_queue")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONStoreRejectsInvalidJSON(t *testing.T) {
	store := newTestJSONStore(t)

	err := store.Set(context.Background(), "settings", []byte("not json"))
	assert.Error(t, err)
}

func TestJSONStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	first, err := NewJSONStore(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "settings", []byte(`{"schema_version":"1.2.0"}`)))
	require.NoError(t, first.Close())

	second, err := NewJSONStore(Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	value, err := second.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Contains(t, string(value), "1.2.0")
}

func TestJSONStorePing(t *testing.T) {
	store := newTestJSONStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
