package xdsserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBindCreatesSocketWithConfiguredPermissions(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "nested", "xds.sock")

	s := &Server{socketPath: socketPath, log: zap.NewNop()}
	listener, ownsSocketFile, err := s.bind(0o600)
	require.NoError(t, err)
	require.True(t, ownsSocketFile)
	defer listener.Close()

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestBindRemovesStaleSocketFile(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "xds.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o644))

	s := &Server{socketPath: socketPath, log: zap.NewNop()}
	listener, _, err := s.bind(0o777)
	require.NoError(t, err)
	defer listener.Close()
}
