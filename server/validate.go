package server

import (
	"errors"
	"path/filepath"
	"strings"
)

// validateResourcePath checks a path submitted over the API before it is
// handed to the monitor.
func validateResourcePath(path string) (string, error) {
	path = strings.TrimSpace(path)

	if len(path) == 0 {
		return "", errors.New("empty path")
	}

	if strings.ContainsRune(path, 0) {
		return "", errors.New("invalid path: contains NUL byte")
	}

	// relative paths would resolve against the daemon's working directory
	if !filepath.IsAbs(path) {
		return "", errors.New("invalid path: must be absolute")
	}

	for _, segment := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if segment == ".." {
			return "", errors.New("invalid path: potential path traversal")
		}
	}

	return filepath.Clean(path), nil
}
