// Package config loads and validates the sidecar's YAML configuration
// file: ACME/storage/socket metadata, the list of certificates to
// manage, and the workload's own Envoy listeners/clusters in expanded
// JSON/YAML form. Grounded on the teacher's pkg/config DSL/loader
// split and on original_source's src/config/{types,loader,deserialize}.rs.
package config

// Config is the root of the sidecar's configuration file.
type Config struct {
	Meta         Meta          `yaml:"meta"`
	Certificates []Certificate `yaml:"certificates"`
	Envoy        EnvoyWorkload `yaml:"envoy"`
}

// Meta holds sidecar-wide settings: where to persist state, which
// ACME directory to use, and where to publish the xDS Unix socket.
type Meta struct {
	StorageDir         string `yaml:"storage_dir"`
	ACMEDirectoryURL    string `yaml:"acme_directory_url"`
	SocketPath         string `yaml:"socket_path"`
	SocketPermissions  uint32 `yaml:"socket_permissions"`
}

// DefaultACMEDirectoryURL is used when acme_directory_url is omitted.
const DefaultACMEDirectoryURL = "https://acme-v02.api.letsencrypt.org/directory"

// DefaultSocketPermissions is used when socket_permissions is omitted,
// matching original_source's default of world-writable so any
// data-plane process can connect regardless of its uid.
const DefaultSocketPermissions = 0o777

// Certificate names one certificate to manage: the SDS secret name it
// will be published under, and the domains it covers.
type Certificate struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
}

// EnvoyWorkload carries the workload's own static Envoy resources in
// their raw decoded-YAML form (map[string]interface{} per element),
// deferred to the deserialize step so typed_config's expanded
// "@type" Any form can be resolved against the proto registry.
type EnvoyWorkload struct {
	Listeners []interface{} `yaml:"listeners"`
	Clusters  []interface{} `yaml:"clusters"`
}
