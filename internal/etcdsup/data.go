package etcdsup

import (
	"fmt"
	"os"
	"path/filepath"
)

// HasLocalData reports whether the consensus data directory holds a
// committed write-ahead log (at least one file in
// <data_dir>/member/wal). A missing WAL directory is unambiguously "no
// data" (false, nil). A WAL directory that exists but cannot be read is
// the fail-safe case: the caller must not conclude "no data" from an I/O
// error, so this returns a non-nil error instead of (false, nil).
func HasLocalData(dataDir string) (bool, error) {
	walDir := filepath.Join(dataDir, "member", "wal")

	if _, err := os.Stat(walDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat WAL directory: %w", err)
	}

	entries, err := os.ReadDir(walDir)
	if err != nil {
		return false, fmt.Errorf("failed to read WAL directory: %w", err)
	}
	return len(entries) > 0, nil
}

// ClearDirectory removes every entry under path without removing path
// itself. A non-existent path is a no-op.
func ClearDirectory(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			if err := os.RemoveAll(full); err != nil {
				return err
			}
		} else if err := os.Remove(full); err != nil {
			return err
		}
	}
	return nil
}
