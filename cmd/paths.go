// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"path/filepath"

	"github.com/tejiriaustin/resource-monitor/monitoring"
)

// resolvePath turns a path given on the command line into the form the
// daemon records. A file that no longer exists is resolved through its
// parent directory, and through Abs alone when that is gone too.
func resolvePath(path string) (string, error) {
	if canonical, err := monitoring.Canonicalize(path); err == nil {
		return canonical, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if dir, err := monitoring.Canonicalize(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}
	return abs, nil
}
