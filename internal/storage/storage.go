// Package storage persists ACME account credentials and issued
// certificates to the filesystem (C7). Grounded on original_source's
// src/acme/storage.rs CertificateStorage, with the same directory
// layout (account.json, certs/<name>/{cert.pem,key.pem,meta.json}) and
// the same "missing file means not-found, not an error" semantics.
package storage

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/csssuf/envoy-acme-xds/internal/apperr"
)

// AccountCredentials mirrors the fields instant-acme's
// AccountCredentials persists: enough to re-authenticate against the
// ACME server on restart without creating a new account.
type AccountCredentials struct {
	ID       string `json:"id"`
	Key      string `json:"key"` // PEM-encoded EC private key
	Directory string `json:"directory"`
}

// Cert is a stored certificate plus the metadata needed to decide
// when it needs renewal.
type Cert struct {
	CertChainPEM  string    `json:"-"`
	PrivateKeyPEM string    `json:"-"`
	Domains       []string  `json:"domains"`
	NotAfter      time.Time `json:"not_after"`
}

// certMeta is the on-disk shape of meta.json; the chain and key live
// in their own sibling files.
type certMeta struct {
	Domains  []string  `json:"domains"`
	NotAfter time.Time `json:"not_after"`
}

// privateKeyPerm matches original_source's 0o600 restriction on the
// certificate private key file.
const privateKeyPerm = 0o600

// Store is a filesystem-backed persistence adapter rooted at baseDir.
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir. Init must be called before
// any Load/Save method to ensure the directory tree exists.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Init creates the storage directory tree if it doesn't already exist.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.certsDir(), 0o755); err != nil {
		return apperr.WrapConfigError("creating storage directories", err)
	}
	return nil
}

func (s *Store) certsDir() string       { return filepath.Join(s.baseDir, "certs") }
func (s *Store) accountPath() string    { return filepath.Join(s.baseDir, "account.json") }
func (s *Store) certDir(name string) string  { return filepath.Join(s.certsDir(), name) }
func (s *Store) certPath(name string) string { return filepath.Join(s.certDir(name), "cert.pem") }
func (s *Store) keyPath(name string) string  { return filepath.Join(s.certDir(name), "key.pem") }
func (s *Store) metaPath(name string) string { return filepath.Join(s.certDir(name), "meta.json") }

// LoadAccount loads previously persisted ACME account credentials. A
// missing file returns (nil, nil): absence is not an error, matching
// original_source's Option-returning load_account.
func (s *Store) LoadAccount() (*AccountCredentials, error) {
	content, err := os.ReadFile(s.accountPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.WrapConfigError("reading account credentials", err)
	}

	var creds AccountCredentials
	if err := json.Unmarshal(content, &creds); err != nil {
		return nil, apperr.WrapConfigError("parsing account credentials", err)
	}
	return &creds, nil
}

// SaveAccount persists ACME account credentials, overwriting any
// previous file.
func (s *Store) SaveAccount(creds *AccountCredentials) error {
	content, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return apperr.WrapConfigError("marshaling account credentials", err)
	}
	if err := writeFileAtomic(s.accountPath(), content, 0o644); err != nil {
		return apperr.WrapConfigError("writing account credentials", err)
	}
	return nil
}

// LoadCert loads a previously issued certificate by name. A missing
// cert, key, or meta file returns (nil, nil) — any one of the three
// absent counts the whole certificate as not-found.
func (s *Store) LoadCert(name string) (*Cert, error) {
	certPath, keyPath, metaPath := s.certPath(name), s.keyPath(name), s.metaPath(name)

	for _, p := range []string{certPath, keyPath, metaPath} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}

	chainPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, apperr.WrapConfigError("reading certificate chain", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, apperr.WrapConfigError("reading certificate key", err)
	}
	metaContent, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, apperr.WrapConfigError("reading certificate metadata", err)
	}

	var meta certMeta
	if err := json.Unmarshal(metaContent, &meta); err != nil {
		return nil, apperr.WrapConfigError("parsing certificate metadata", err)
	}

	return &Cert{
		CertChainPEM:  string(chainPEM),
		PrivateKeyPEM: string(keyPEM),
		Domains:       meta.Domains,
		NotAfter:      meta.NotAfter,
	}, nil
}

// SaveCert persists an issued certificate's chain, key, and metadata.
// The key file is written with 0o600 permissions.
func (s *Store) SaveCert(name string, cert *Cert) error {
	if err := os.MkdirAll(s.certDir(name), 0o755); err != nil {
		return apperr.WrapConfigError("creating certificate directory", err)
	}

	if err := writeFileAtomic(s.certPath(name), []byte(cert.CertChainPEM), 0o644); err != nil {
		return apperr.WrapConfigError("writing certificate chain", err)
	}
	if err := writeFileAtomic(s.keyPath(name), []byte(cert.PrivateKeyPEM), privateKeyPerm); err != nil {
		return apperr.WrapConfigError("writing certificate key", err)
	}

	meta := certMeta{Domains: cert.Domains, NotAfter: cert.NotAfter}
	metaContent, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.WrapConfigError("marshaling certificate metadata", err)
	}
	if err := writeFileAtomic(s.metaPath(name), metaContent, 0o644); err != nil {
		return apperr.WrapConfigError("writing certificate metadata", err)
	}
	return nil
}

// writeFileAtomic writes data to a temporary file in the same
// directory as path, fsyncs it, then renames it into place, so a
// concurrent reader (or a crash mid-write) never observes a
// partially-written file at path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ParseCertificateExpiry returns the NotAfter time of the leaf
// certificate in a PEM chain, matching original_source's
// parse_certificate_expiry.
func ParseCertificateExpiry(chainPEM string) (time.Time, error) {
	cert, err := leafCertificate(chainPEM)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

func leafCertificate(chainPEM string) (*x509.Certificate, error) {
	block, err := decodeFirstPEMBlock([]byte(chainPEM))
	if err != nil {
		return nil, apperr.NewX509Error("decoding PEM chain", err)
	}
	cert, err := x509.ParseCertificate(block)
	if err != nil {
		return nil, apperr.NewX509Error("parsing leaf certificate", err)
	}
	return cert, nil
}
