package mesh

import (
	"time"

	"github.com/soundproof/enfmesh/crypto"
)

// TransportKind identifies a discovery/messaging protocol.
type TransportKind string

const (
	TransportBluetoothLE TransportKind = "bluetooth_le"
	TransportWifiDirect  TransportKind = "wifi_direct"
	TransportRelay       TransportKind = "relay"
)

// PeerState is a peer's position in the connection state machine.
type PeerState string

const (
	StateDiscovered   PeerState = "discovered"
	StateConnecting   PeerState = "connecting"
	StateConnected    PeerState = "connected"
	StateDisconnected PeerState = "disconnected"
)

// Capabilities flags what a discovered peer is willing to do.
type Capabilities struct {
	// Compare indicates the peer answers comparison requests.
	Compare bool `json:"compare"`

	// Store indicates the peer keeps fingerprints for later lookup.
	Store bool `json:"store"`

	// Relay indicates the peer forwards messages for others.
	Relay bool `json:"relay"`
}

// Peer describes one discovered mesh participant. The ID is ephemeral
// and session-scoped, never a stable device identity.
type Peer struct {
	ID             string            `json:"id"`
	PublicKey      crypto.PublicKey  `json:"public_key"`
	ExchangeKey    crypto.KemPublicKey `json:"exchange_key"`
	Address        string            `json:"address"`
	Transport      TransportKind     `json:"transport"`
	SignalStrength float64           `json:"signal_strength"`
	Capabilities   Capabilities      `json:"capabilities"`
	LastSeen       time.Time         `json:"last_seen"`
}

// Live reports whether the peer counts as alive at now given the
// staleness window. Liveness is derived, never stored.
func (p *Peer) Live(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(p.LastSeen) <= staleAfter
}
