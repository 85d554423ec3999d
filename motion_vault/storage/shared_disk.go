package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// SharedDisk stores payloads as plain files under a base directory, which may
// be a mounted network volume shared between service replicas.
type SharedDisk struct {
	basepath string
}

func NewSharedDisk(basepath string) Storage {
	slog.Info("using shared disk storage", "basepath", basepath)
	return &SharedDisk{basepath: basepath}
}

func (s *SharedDisk) resolve(path string) string {
	return filepath.Join(s.basepath, path)
}

func (s *SharedDisk) Read(path string) (io.ReadCloser, error) {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("error reading %v: %w", path, err)
	}
	return file, nil
}

func (s *SharedDisk) Write(path string, data io.Reader) error {
	return s.open(path, data, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (s *SharedDisk) Append(path string, data io.Reader) error {
	return s.open(path, data, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
}

func (s *SharedDisk) open(path string, data io.Reader, flags int) error {
	fullpath := s.resolve(path)

	if err := os.MkdirAll(filepath.Dir(fullpath), 0777); err != nil {
		return fmt.Errorf("error creating parent directory for %v: %w", path, err)
	}

	file, err := os.OpenFile(fullpath, flags, 0666)
	if err != nil {
		return fmt.Errorf("error opening %v: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("error writing %v: %w", path, err)
	}
	return nil
}

func (s *SharedDisk) Delete(path string) error {
	if err := os.RemoveAll(s.resolve(path)); err != nil {
		return fmt.Errorf("error deleting %v: %w", path, err)
	}
	return nil
}

// List returns the names of the regular files directly under path.
func (s *SharedDisk) List(path string) ([]string, error) {
	entries, err := os.ReadDir(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("error listing %v: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *SharedDisk) Exists(path string) (bool, error) {
	_, err := os.Stat(s.resolve(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("error checking %v: %w", path, err)
	}
}

func (s *SharedDisk) Size(path string) (int64, error) {
	info, err := os.Stat(s.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("error checking %v: %w", path, err)
	}
	return info.Size(), nil
}

// Usage reports the capacity of the filesystem backing the base directory.
// Free space is what an unprivileged writer can actually use.
func (s *SharedDisk) Usage() (UsageStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.basepath, &stat); err != nil {
		return UsageStats{}, fmt.Errorf("error getting disk usage for %v: %w", s.basepath, err)
	}

	blockSize := uint64(stat.Bsize)
	return UsageStats{
		TotalBytes: stat.Blocks * blockSize,
		FreeBytes:  stat.Bavail * blockSize,
	}, nil
}

func (s *SharedDisk) Location() string {
	return s.basepath
}
