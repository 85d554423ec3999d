package blob_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap_platform/motion_vault/blob"
	"mocap_platform/motion_vault/storage"
)

func newTestStore(t *testing.T) *blob.Store {
	return blob.NewStore(storage.NewSharedDisk(t.TempDir()))
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	filename, err := store.Save("files", "data", []byte("frame payload"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(filename, ".data"))
	assert.Len(t, strings.TrimSuffix(filename, ".data"), 40)

	data, err := store.Load("files", filename)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame payload"), data)
}

func TestSaveEmptyPayload(t *testing.T) {
	store := newTestStore(t)

	filename, err := store.Save("files", "data", nil)
	require.NoError(t, err)
	assert.Equal(t, "", filename)

	data, err := store.Load("files", "")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRepeatedSavesGetDistinctNames(t *testing.T) {
	store := newTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		filename, err := store.Save("files", "data", []byte("same bytes"))
		require.NoError(t, err)
		assert.False(t, seen[filename], "filename %v assigned twice", filename)
		seen[filename] = true
	}
}

func TestColumnSuffix(t *testing.T) {
	store := newTestStore(t)

	dataName, err := store.Save("skeletons", "data", []byte("hierarchy"))
	require.NoError(t, err)
	metaName, err := store.Save("skeletons", "meta_data", []byte("units"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(dataName, ".data"))
	assert.True(t, strings.HasSuffix(metaName, ".meta_data"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	filename, err := store.Save("files", "data", []byte("to delete"))
	require.NoError(t, err)

	require.NoError(t, store.Remove("files", filename))
	require.NoError(t, store.Remove("files", filename))
	require.NoError(t, store.Remove("files", ""))

	_, err = store.Load("files", filename)
	assert.Error(t, err)
}
