package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/resource-monitor/monitoring"
)

func TestResolvePath(t *testing.T) {
	root, err := monitoring.Canonicalize(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(root, "target")
	require.NoError(t, os.Mkdir(target, 0755))
	link := filepath.Join(root, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(target, "file"), []byte("data"), 0644))

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "existing file through linked directory",
			path:     filepath.Join(link, "file"),
			expected: filepath.Join(target, "file"),
		},
		{
			name:     "deleted file through linked directory",
			path:     filepath.Join(link, "gone"),
			expected: filepath.Join(target, "gone"),
		},
		{
			name:     "missing parent falls back to absolute path",
			path:     filepath.Join(root, "missing", "file"),
			expected: filepath.Join(root, "missing", "file"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolvePath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resolved)
		})
	}
}
