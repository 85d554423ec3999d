package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mocap_platform/motion_vault/codec"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := bson.M{
		"skeleton": "cmu_38",
		"poses": bson.A{
			bson.M{"root": bson.A{0.0, 1.0, 0.0}},
			bson.M{"root": bson.A{0.0, 1.1, 0.0}},
			bson.M{"root": bson.A{0.0, 1.2, 0.0}},
		},
	}

	compressed, err := codec.Encode(doc)
	require.NoError(t, err)

	decoded, err := codec.Decode(compressed)
	require.NoError(t, err)

	assert.Equal(t, "cmu_38", decoded["skeleton"])
	assert.Equal(t, 3, codec.NumFrames(decoded))
}

func TestDecodeRawBsonFallback(t *testing.T) {
	doc := bson.M{
		"skeleton": "cmu_38",
		"poses":    bson.A{bson.M{"root": bson.A{0.0, 1.0, 0.0}}},
	}

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	// Uncompressed documents decode through the raw-bson fallback.
	decoded, err := codec.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "cmu_38", decoded["skeleton"])
	assert.Equal(t, 1, codec.NumFrames(decoded))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	// Neither a bzip2 stream nor a bson document.
	_, err := codec.Decode([]byte("not a bzip2 stream"))
	assert.Error(t, err)
}

func TestDecodeRejectsCompressedGarbage(t *testing.T) {
	doc := bson.M{"poses": bson.A{}}
	compressed, err := codec.Encode(doc)
	require.NoError(t, err)

	// Truncating the stream must not yield a document.
	_, err = codec.Decode(compressed[:len(compressed)/2])
	assert.Error(t, err)
}

func TestNumFramesWithoutPoses(t *testing.T) {
	assert.Equal(t, 0, codec.NumFrames(bson.M{"skeleton": "cmu_38"}))
	assert.Equal(t, 0, codec.NumFrames(bson.M{"poses": "not a list"}))
}
