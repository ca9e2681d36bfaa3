package mesh

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/soundproof/enfmesh/protocol"
)

// Discoverer scans one transport protocol for nearby peers. A scan only
// reports findings; inserting into the registry and emitting events is
// the transport's job, so implementations never touch shared state.
type Discoverer interface {
	// Kind names the transport protocol this discoverer covers.
	Kind() TransportKind

	// Scan performs one discovery pass and returns the peers seen.
	Scan(ctx context.Context) ([]Peer, error)
}

// StaticDiscoverer reports a fixed peer set on every scan, refreshing
// LastSeen. Used for direct-link setups and in tests.
type StaticDiscoverer struct {
	Transport TransportKind
	Peers     []Peer
}

func (d *StaticDiscoverer) Kind() TransportKind {
	return d.Transport
}

func (d *StaticDiscoverer) Scan(ctx context.Context) ([]Peer, error) {
	out := make([]Peer, len(d.Peers))
	for i, p := range d.Peers {
		p.Transport = d.Transport
		p.LastSeen = time.Now().UTC()
		out[i] = p
	}
	return out, nil
}

// RendezvousDiscoverer polls a relay rendezvous service for peers that
// registered there. This is the relay-assisted transport's discovery.
type RendezvousDiscoverer struct {
	// URL is the rendezvous service base URL.
	URL string

	// SelfID is excluded from scan results.
	SelfID string

	// Client is the HTTP client used for polling. Defaults to a client
	// with a 10 second timeout.
	Client *http.Client
}

func (d *RendezvousDiscoverer) Kind() TransportKind {
	return TransportRelay
}

func (d *RendezvousDiscoverer) Scan(ctx context.Context) ([]Peer, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL+"/peers", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rendezvous returned status %d", resp.StatusCode)
	}

	list, err := protocol.DecodeMessage[[]Peer](resp.Body)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	peers := make([]Peer, 0, len(*list))
	for _, p := range *list {
		if p.ID == d.SelfID {
			continue
		}
		p.Transport = TransportRelay
		p.LastSeen = now
		peers = append(peers, p)
	}
	return peers, nil
}
