package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates:
  - name: example
    domains:
      - example.com
      - www.example.com

envoy:
  listeners: []
  clusters: []
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultACMEDirectoryURL, cfg.Meta.ACMEDirectoryURL)
	assert.EqualValues(t, DefaultSocketPermissions, cfg.Meta.SocketPermissions)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, "example", cfg.Certificates[0].Name)
}

func TestLoadRejectsEmptyCertificateName(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates:
  - name: ""
    domains:
      - example.com
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateCertificateNames(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates:
  - name: foo
    domains:
      - foo.com
  - name: foo
    domains:
      - bar.com
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNoCertificates(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock

certificates: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptyStorageDir(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: ""
  socket_path: /tmp/test.sock

certificates:
  - name: foo
    domains:
      - foo.com
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptySocketPathWithoutActivation(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: ""

certificates:
  - name: foo
    domains:
      - foo.com
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAllowsEmptySocketPathUnderSocketActivation(t *testing.T) {
	t.Setenv("LISTEN_FDS", "1")

	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: ""

certificates:
  - name: foo
    domains:
      - foo.com
`)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoadAppliesCustomACMEDirectory(t *testing.T) {
	path := writeConfig(t, `
meta:
  storage_dir: /tmp/test
  socket_path: /tmp/test.sock
  acme_directory_url: https://acme-staging-v02.api.letsencrypt.org/directory

certificates:
  - name: foo
    domains:
      - foo.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://acme-staging-v02.api.letsencrypt.org/directory", cfg.Meta.ACMEDirectoryURL)
}
