package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"go.mongodb.org/mongo-driver/bson"
)

// Motion payloads are stored as bzip2-compressed bson documents. Uploaded
// payloads are decoded once, so malformed data is rejected at ingest and the
// stored form is the canonical re-encoding rather than the client's bytes.

// Decode reads a stored payload as a bson document. Decompression is
// attempted first; payloads that are not a bzip2 stream are read as raw bson,
// so uncompressed documents ingested by older tooling stay readable.
func Decode(payload []byte) (bson.M, error) {
	if doc, err := decodeCompressed(payload); err == nil {
		return doc, nil
	}

	var doc bson.M
	if err := bson.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("motion payload is neither bzip2(bson) nor raw bson: %w", err)
	}
	return doc, nil
}

func decodeCompressed(compressed []byte) (bson.M, error) {
	reader, err := bzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		return nil, fmt.Errorf("error opening bzip2 stream: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error decompressing motion payload: %w", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error decoding motion document: %w", err)
	}

	return doc, nil
}

func Encode(doc interface{}) ([]byte, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error encoding motion document: %w", err)
	}

	var buf bytes.Buffer
	writer, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, fmt.Errorf("error opening bzip2 writer: %w", err)
	}

	if _, err := writer.Write(raw); err != nil {
		writer.Close()
		return nil, fmt.Errorf("error compressing motion payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error finalizing bzip2 stream: %w", err)
	}

	return buf.Bytes(), nil
}

// NumFrames counts the pose entries of a decoded motion document. Documents
// without a pose list report zero frames.
func NumFrames(doc bson.M) int {
	poses, ok := doc["poses"]
	if !ok {
		return 0
	}

	switch p := poses.(type) {
	case bson.A:
		return len(p)
	case []interface{}:
		return len(p)
	default:
		return 0
	}
}
