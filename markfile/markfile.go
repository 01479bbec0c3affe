// Package markfile locates and creates the per-repository mark file
// git fast-export/fast-import use to remember which marks it has already
// assigned. The core treats the file's contents as opaque — only the
// exporter package reads and writes through it.
package markfile

import (
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Path returns the mark file path for repoName under workDir, joined
// with securejoin so a repository name containing ".." segments can't
// escape workDir.
func Path(workDir, repoName string) (string, error) {
	path, err := securejoin.SecureJoin(workDir, repoName)
	if err != nil {
		return "", fmt.Errorf("markfile: joining %q under %q: %w", repoName, workDir, err)
	}
	return path, nil
}

// EnsureExists creates an empty mark file at path if one doesn't already
// exist, leaving an existing file (and its accumulated marks) untouched.
// It reports whether a new file was created.
func EnsureExists(path string) (created bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		f.Close()
		return true, nil
	}
	if os.IsExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("markfile: creating %q: %w", path, err)
}
