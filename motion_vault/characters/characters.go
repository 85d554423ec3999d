package characters

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mocap_platform/motion_vault/storage"
)

const meshExt = ".glb"

// Store keeps character meshes on disk at characters/<skeleton_type>/<name>.glb.
// Unlike catalog blobs the filenames are the caller-visible key, so names are
// validated instead of hashed.
type Store struct {
	storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

func validKey(part string) error {
	if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
		return fmt.Errorf("invalid character model key %q", part)
	}
	return nil
}

func (s *Store) meshPath(skeletonType, name string) (string, error) {
	if err := validKey(skeletonType); err != nil {
		return "", err
	}
	if err := validKey(name); err != nil {
		return "", err
	}
	return filepath.Join("characters", skeletonType, name+meshExt), nil
}

// List returns the model names stored for a skeleton type. A skeleton type
// with no uploads yields an empty list.
func (s *Store) List(skeletonType string) ([]string, error) {
	if err := validKey(skeletonType); err != nil {
		return nil, err
	}

	entries, err := s.storage.List(filepath.Join("characters", skeletonType))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry, meshExt) {
			names = append(names, strings.TrimSuffix(entry, meshExt))
		}
	}
	return names, nil
}

func (s *Store) Save(skeletonType, name string, data []byte) error {
	path, err := s.meshPath(skeletonType, name)
	if err != nil {
		return err
	}
	return s.storage.Write(path, bytes.NewReader(data))
}

func (s *Store) Load(skeletonType, name string) ([]byte, error) {
	path, err := s.meshPath(skeletonType, name)
	if err != nil {
		return nil, err
	}

	file, err := s.storage.Read(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// Delete removes the mesh; deleting an absent mesh is not an error.
func (s *Store) Delete(skeletonType, name string) error {
	path, err := s.meshPath(skeletonType, name)
	if err != nil {
		return err
	}

	exists, err := s.storage.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return s.storage.Delete(path)
}
