package blob

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"mocap_platform/motion_vault/storage"
)

// Store writes opaque payloads under <table>/<filename> in the backing
// storage. Filenames are derived from a salted hash of the payload so that
// repeated saves of the same bytes never collide, and the column suffix keeps
// data and metadata payloads for the same row distinguishable on disk.
type Store struct {
	storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

const filenameHashLen = 40

func blobFilename(data []byte, column string) string {
	salt := strconv.FormatInt(time.Now().UnixNano(), 10)

	hash := sha512.New()
	hash.Write(data)
	hash.Write([]byte(salt))

	return hex.EncodeToString(hash.Sum(nil))[:filenameHashLen] + "." + column
}

// Save stores data and returns the generated filename. Empty payloads are not
// written; the returned filename is "" so the catalog records the absence.
func (s *Store) Save(table, column string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	filename := blobFilename(data, column)

	err := s.storage.Write(filepath.Join(table, filename), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("error saving blob for %v.%v: %w", table, column, err)
	}

	return filename, nil
}

// Load returns the payload for a filename previously returned by Save. An
// empty filename yields an empty payload without touching storage.
func (s *Store) Load(table, filename string) ([]byte, error) {
	if filename == "" {
		return nil, nil
	}

	file, err := s.storage.Read(filepath.Join(table, filename))
	if err != nil {
		return nil, fmt.Errorf("error loading blob %v/%v: %w", table, filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("error reading blob %v/%v: %w", table, filename, err)
	}

	return data, nil
}

// Remove deletes the blob if present. Missing blobs and empty filenames are
// not errors, so rows can be deleted repeatedly without failing on storage.
func (s *Store) Remove(table, filename string) error {
	if filename == "" {
		return nil
	}

	path := filepath.Join(table, filename)

	exists, err := s.storage.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		slog.Debug("blob already removed", "path", path)
		return nil
	}

	return s.storage.Delete(path)
}
