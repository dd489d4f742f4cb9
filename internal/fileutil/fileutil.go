// Package fileutil provides small filesystem helpers for scratch-file handling.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RemoveIfExists deletes path, reporting whether a file was actually removed.
// A missing file is not an error.
func RemoveIfExists(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
	return true, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the byte size of path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// ScratchName builds a collision-free filename under dir, preserving the
// original file's extension: prefix-<uuid><ext>.
func ScratchName(dir, prefix, original string) string {
	ext := filepath.Ext(original)
	return filepath.Join(dir, prefix+"-"+uuid.NewString()+ext)
}

// SweepScratch removes regular files under dir whose names start with one of
// the given prefixes, returning how many were deleted. Files left behind by
// jobs that died with the daemon are reclaimed this way on startup. A missing
// directory sweeps nothing.
func SweepScratch(dir string, prefixes ...string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch dir %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				if err := os.Remove(filepath.Join(dir, name)); err != nil {
					return removed, fmt.Errorf("remove %s: %w", name, err)
				}
				removed++
				break
			}
		}
	}
	return removed, nil
}
