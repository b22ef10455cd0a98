package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherPublishesReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	initial := `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates:
  - name: foo
    domains:
      - foo.com
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	updated := `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates:
  - name: foo
    domains:
      - foo.com
      - bar.com
`
	// Give fsnotify time to register the watch before the write happens.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-w.Updates():
		require.Len(t, cfg.Certificates[0].Domains, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reloaded config")
	}
}

func TestWatcherDropsReloadOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("meta:\n  storage_dir: /tmp/test\n  socket_path: /tmp/test.sock\ncertificates:\n  - name: foo\n    domains: [foo.com]\n"), 0o644))

	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	go w.Start()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644))

	select {
	case <-w.Updates():
		t.Fatal("malformed config should not produce a reload")
	case <-time.After(200 * time.Millisecond):
	}
}
