package upload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap_platform/motion_vault/upload"
)

func TestAssemblyInAscendingPartOrder(t *testing.T) {
	buffer := upload.NewBuffer()

	// Parts arrive out of order.
	require.NoError(t, buffer.Update("clip1", 2, 3, []byte("cc")))
	assert.False(t, buffer.IsComplete("clip1"))
	require.NoError(t, buffer.Update("clip1", 0, 3, []byte("aa")))
	assert.False(t, buffer.IsComplete("clip1"))
	require.NoError(t, buffer.Update("clip1", 1, 3, []byte("bb")))
	assert.True(t, buffer.IsComplete("clip1"))

	payload, err := buffer.Get("clip1")
	require.NoError(t, err)
	assert.Equal(t, []byte("aabbcc"), payload)
}

func TestResubmittedPartOverwrites(t *testing.T) {
	buffer := upload.NewBuffer()

	require.NoError(t, buffer.Update("clip1", 0, 2, []byte("old")))
	require.NoError(t, buffer.Update("clip1", 0, 2, []byte("new")))
	require.NoError(t, buffer.Update("clip1", 1, 2, []byte("tail")))

	payload, err := buffer.Get("clip1")
	require.NoError(t, err)
	assert.Equal(t, []byte("newtail"), payload)
}

func TestLoweredPartCountDropsStaleParts(t *testing.T) {
	buffer := upload.NewBuffer()

	require.NoError(t, buffer.Update("clip1", 0, 3, []byte("aa")))
	require.NoError(t, buffer.Update("clip1", 2, 3, []byte("cc")))

	// Shrinking the declared count discards the now out-of-range chunk, so
	// the upload is neither complete nor polluted by it.
	require.NoError(t, buffer.Update("clip1", 0, 2, []byte("aa")))
	assert.False(t, buffer.IsComplete("clip1"))

	require.NoError(t, buffer.Update("clip1", 1, 2, []byte("bb")))
	assert.True(t, buffer.IsComplete("clip1"))

	payload, err := buffer.Get("clip1")
	require.NoError(t, err)
	assert.Equal(t, []byte("aabb"), payload)
}

func TestPartIndexValidation(t *testing.T) {
	buffer := upload.NewBuffer()

	assert.Error(t, buffer.Update("clip1", -1, 2, []byte("x")))
	assert.Error(t, buffer.Update("clip1", 2, 2, []byte("x")))
	assert.Error(t, buffer.Update("clip1", 0, 0, []byte("x")))
}

func TestIndependentNames(t *testing.T) {
	buffer := upload.NewBuffer()

	require.NoError(t, buffer.Update("a", 0, 1, []byte("first")))
	require.NoError(t, buffer.Update("b", 0, 2, []byte("second")))

	assert.True(t, buffer.IsComplete("a"))
	assert.False(t, buffer.IsComplete("b"))
}

func TestDeleteDropsEntry(t *testing.T) {
	buffer := upload.NewBuffer()

	require.NoError(t, buffer.Update("clip1", 0, 1, []byte("x")))
	buffer.Delete("clip1")

	assert.False(t, buffer.IsComplete("clip1"))
	_, err := buffer.Get("clip1")
	assert.Error(t, err)
}
