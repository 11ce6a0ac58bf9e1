package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	fs := NewFileService()

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.IsFileExists(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReadYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: monitor\ninterval: 15s\n"), 0o600))

	var out struct {
		Name     string        `yaml:"name"`
		Interval time.Duration `yaml:"interval"`
	}

	fs := NewFileService()
	require.NoError(t, fs.ReadYamlFile(path, &out))
	assert.Equal(t, "monitor", out.Name)
	assert.Equal(t, 15*time.Second, out.Interval)
}

func TestReadYamlFileMissing(t *testing.T) {
	fs := NewFileService()
	err := fs.ReadYamlFile(filepath.Join(t.TempDir(), "absent.yaml"), &struct{}{})
	assert.Error(t, err)
}
