package characters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap_platform/motion_vault/characters"
	"mocap_platform/motion_vault/storage"
)

func newTestStore(t *testing.T) *characters.Store {
	return characters.NewStore(storage.NewSharedDisk(t.TempDir()))
}

func TestSaveLoadList(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("cmu_38", "knight", []byte("glTF binary")))
	require.NoError(t, store.Save("cmu_38", "peasant", []byte("other mesh")))
	require.NoError(t, store.Save("game_engine", "knight", []byte("retargeted mesh")))

	names, err := store.List("cmu_38")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"knight", "peasant"}, names)

	data, err := store.Load("game_engine", "knight")
	require.NoError(t, err)
	assert.Equal(t, []byte("retargeted mesh"), data)
}

func TestListEmptySkeletonType(t *testing.T) {
	store := newTestStore(t)

	names, err := store.List("unknown_type")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("cmu_38", "knight", []byte("mesh")))
	require.NoError(t, store.Delete("cmu_38", "knight"))
	require.NoError(t, store.Delete("cmu_38", "knight"))

	names, err := store.List("cmu_38")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRejectsPathTraversal(t *testing.T) {
	store := newTestStore(t)

	assert.Error(t, store.Save("..", "knight", []byte("mesh")))
	assert.Error(t, store.Save("cmu_38", "../../etc/passwd", []byte("mesh")))
	_, err := store.Load("cmu_38", "a/b")
	assert.Error(t, err)
}
