// Package config defines the mesh node and registry process
// configuration and its loading from defaults, an optional YAML file
// and environment variables.
package config

import (
	"time"

	"github.com/soundproof/enfmesh/store"
)

// Config contains process configuration for the service binaries.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches the log output to JSON.
	LogJSON bool `koanf:"log_json"`

	// ListenAddr configures the HTTP listen address, e.g. ":8090".
	ListenAddr string `koanf:"listen_addr"`

	// MetricsAddr configures the metrics listen address. Empty disables
	// the metrics server.
	MetricsAddr string `koanf:"metrics_addr"`

	// EnablePprof enables the pprof debugging API.
	EnablePprof bool `koanf:"pprof"`

	// SigningKey is the node's Ed25519 private key, hex encoded. Empty
	// generates a fresh ephemeral key on startup.
	SigningKey string `koanf:"signing_key"`

	// NodeAddress is the base URL other peers use to reach this node.
	NodeAddress string `koanf:"node_address"`

	// RendezvousURL is the relay rendezvous service to register with and
	// poll for peers. Empty disables relay discovery.
	RendezvousURL string `koanf:"rendezvous_url"`

	// PeerStaleAfter, DiscoveryInterval, HandshakeTimeout and
	// ComparisonTimeout override the mesh defaults when non-zero.
	PeerStaleAfter    time.Duration `koanf:"peer_stale_after"`
	DiscoveryInterval time.Duration `koanf:"discovery_interval"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
	ComparisonTimeout time.Duration `koanf:"comparison_timeout"`

	// MinPeers and OutlierThreshold parameterize report aggregation.
	MinPeers         int     `koanf:"min_peers"`
	OutlierThreshold float64 `koanf:"outlier_threshold"`

	// Postgres connection settings. Empty host selects the in-memory
	// store.
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDatabase string `koanf:"postgres_database"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		ListenAddr:       ":8090",
		MinPeers:         3,
		OutlierThreshold: 2.0,
		PostgresPort:     5432,
		PostgresSSLMode:  "disable",
	}
}

// PostgresConfig maps the flat settings onto the store's config.
func (c *Config) PostgresConfig() *store.PostgresConfig {
	return &store.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		Database: c.PostgresDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
}
