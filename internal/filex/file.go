// Package filex holds small filesystem helpers shared by the index and
// the upload spool.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (relative paths resolve against the working
// directory) and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// RemoveQuietly deletes path and reports whether something was removed.
func RemoveQuietly(path string) bool {
	if path == "" {
		return false
	}
	return os.Remove(path) == nil
}
