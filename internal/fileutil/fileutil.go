package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into dst through a temporary file in the same
// directory and renames it into place, so readers never see a partial file.
// It returns the number of bytes written.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return written, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
