package protocol

import "time"

// MeshConfig provides shared configuration parameters for mesh components.
type MeshConfig struct {
	// PeerStaleAfter is the staleness window after which a discovered
	// peer no longer counts as live.
	PeerStaleAfter time.Duration `json:"peer_stale_after,string"`

	// DiscoveryInterval is the tick interval of each discovery loop.
	DiscoveryInterval time.Duration `json:"discovery_interval,string"`

	// HandshakeTimeout bounds the key exchange when connecting to a peer.
	HandshakeTimeout time.Duration `json:"handshake_timeout,string"`

	// ComparisonTimeout is the independent per-peer deadline for one
	// comparison request.
	ComparisonTimeout time.Duration `json:"comparison_timeout,string"`
}

// DefaultMeshConfig returns the configuration used when none is supplied.
func DefaultMeshConfig() *MeshConfig {
	return &MeshConfig{
		PeerStaleAfter:    5 * time.Minute,
		DiscoveryInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ComparisonTimeout: 30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultMeshConfig.
func (c *MeshConfig) WithDefaults() *MeshConfig {
	def := DefaultMeshConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PeerStaleAfter == 0 {
		out.PeerStaleAfter = def.PeerStaleAfter
	}
	if out.DiscoveryInterval == 0 {
		out.DiscoveryInterval = def.DiscoveryInterval
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.ComparisonTimeout == 0 {
		out.ComparisonTimeout = def.ComparisonTimeout
	}
	return &out
}
