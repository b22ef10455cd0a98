package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/csssuf/envoy-acme-xds/internal/apperr"
)

// Load reads, parses, defaults, and validates the configuration file
// at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.WrapConfigError("reading config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, apperr.WrapConfigError("parsing config YAML", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Meta.ACMEDirectoryURL == "" {
		cfg.Meta.ACMEDirectoryURL = DefaultACMEDirectoryURL
	}
	if cfg.Meta.SocketPermissions == 0 {
		cfg.Meta.SocketPermissions = DefaultSocketPermissions
	}
}

// Validate checks structural correctness that can't be expressed by
// YAML unmarshaling alone, matching original_source's validate_config:
// at least one certificate, no empty names/domains, no duplicate
// names, and non-empty storage/socket paths (the socket path may be
// empty when LISTEN_FDS indicates socket activation).
func Validate(cfg *Config) error {
	if len(cfg.Certificates) == 0 {
		return apperr.NewConfigError("at least one certificate configuration is required")
	}

	names := make([]string, 0, len(cfg.Certificates))
	for _, cert := range cfg.Certificates {
		if cert.Name == "" {
			return apperr.NewConfigError("certificate name cannot be empty")
		}
		if len(cert.Domains) == 0 {
			return apperr.NewConfigError(fmt.Sprintf("certificate %q must have at least one domain", cert.Name))
		}
		for _, domain := range cert.Domains {
			if domain == "" {
				return apperr.NewConfigError(fmt.Sprintf("certificate %q has an empty domain", cert.Name))
			}
		}
		names = append(names, cert.Name)
	}

	sort.Strings(names)
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			return apperr.NewConfigError(fmt.Sprintf("duplicate certificate name: %q", names[i]))
		}
	}

	if cfg.Meta.StorageDir == "" {
		return apperr.NewConfigError("storage directory cannot be empty")
	}
	if cfg.Meta.SocketPath == "" && !socketActivationAvailable() {
		return apperr.NewConfigError("socket path cannot be empty")
	}

	return nil
}

// socketActivationAvailable reports whether systemd has passed us a
// socket via LISTEN_FDS, matching xdsserver.Server.bind's
// activation-first logic. Checked via the environment variable rather
// than calling activation.Listeners() here, since that call consumes
// the inherited file descriptors' env state and must happen exactly
// once, at bind time.
func socketActivationAvailable() bool {
	return os.Getenv("LISTEN_FDS") != ""
}
