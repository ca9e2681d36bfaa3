package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
)

// EventType classifies transport events.
type EventType string

const (
	EventPeerDiscovered EventType = "peer_discovered"
	EventPeerExpired    EventType = "peer_expired"
)

// Event is emitted by discovery loops. Consumers that fall behind lose
// events rather than blocking discovery.
type Event struct {
	Type EventType
	Peer Peer
}

// EnvelopeSender delivers a signed envelope to a peer address and
// returns the peer's response envelope. The HTTP implementation lives in
// the services package; tests supply in-memory senders.
type EnvelopeSender interface {
	Send(ctx context.Context, address string, env *protocol.Envelope) (*protocol.Envelope, error)
}

// connection tracks one established peer connection.
type connection struct {
	peer  Peer
	key   crypto.SharedKey
	state PeerState
}

// Config assembles a Transport's dependencies.
type Config struct {
	Mesh       *protocol.MeshConfig
	SelfID     string
	SigningKey crypto.PrivateKey
	Sender     EnvelopeSender
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// Transport owns the peer registry and the active-connections map.
// It is the single writer for both; other components read snapshots
// through Registry() and address peers by opaque IDs.
type Transport struct {
	cfg        *protocol.MeshConfig
	selfID     string
	signingKey crypto.PrivateKey
	kemPriv    crypto.KemPrivateKey
	kemPub     crypto.KemPublicKey
	registry   *Registry
	sender     EnvelopeSender
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	conns    map[string]*connection
	inflight map[string]context.CancelFunc

	discMu      sync.Mutex
	discCancel  context.CancelFunc
	discWG      sync.WaitGroup
	discoverers []Discoverer

	events chan Event
}

// NewTransport creates a transport with a fresh X25519 exchange key pair.
func NewTransport(cfg Config, discoverers ...Discoverer) (*Transport, error) {
	if cfg.SelfID == "" {
		return nil, errors.New("self ID is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("envelope sender is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	meshCfg := cfg.Mesh.WithDefaults()

	kemPub, kemPriv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate exchange key: %w", err)
	}

	return &Transport{
		cfg:         meshCfg,
		selfID:      cfg.SelfID,
		signingKey:  cfg.SigningKey,
		kemPriv:     kemPriv,
		kemPub:      kemPub,
		registry:    NewRegistry(meshCfg.PeerStaleAfter),
		sender:      cfg.Sender,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		conns:       make(map[string]*connection),
		inflight:    make(map[string]context.CancelFunc),
		discoverers: discoverers,
		events:      make(chan Event, 64),
	}, nil
}

// Registry returns the peer table for read-only access.
func (t *Transport) Registry() *Registry {
	return t.registry
}

// Events returns the discovery event stream.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// ExchangeKey returns the transport's X25519 public key.
func (t *Transport) ExchangeKey() crypto.KemPublicKey {
	return t.kemPub
}

// StartDiscovery launches one polling loop per configured discoverer.
// Calling it while discovery is already running is a no-op, so a stop
// immediately followed by a start never leaves duplicate loops.
func (t *Transport) StartDiscovery(ctx context.Context) {
	t.discMu.Lock()
	defer t.discMu.Unlock()

	if t.discCancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.discCancel = cancel

	for _, d := range t.discoverers {
		t.discWG.Add(1)
		go t.runDiscoveryLoop(loopCtx, d)
	}
}

// StopDiscovery cancels all discovery loops and waits for them to exit.
// Idempotent; no timers survive the call.
func (t *Transport) StopDiscovery() {
	t.discMu.Lock()
	defer t.discMu.Unlock()

	if t.discCancel == nil {
		return
	}
	t.discCancel()
	t.discWG.Wait()
	t.discCancel = nil
}

func (t *Transport) runDiscoveryLoop(ctx context.Context, d Discoverer) {
	defer t.discWG.Done()

	t.scanOnce(ctx, d)

	ticker := time.NewTicker(t.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scanOnce(ctx, d)
		}
	}
}

// scanOnce runs one discovery pass. It only inserts/refreshes registry
// entries and emits events; it never blocks on application logic.
func (t *Transport) scanOnce(ctx context.Context, d Discoverer) {
	peers, err := d.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Warn("discovery scan failed", "transport", d.Kind(), "err", err)
		}
		return
	}

	for _, p := range peers {
		if p.ID == t.selfID {
			continue
		}
		if t.registry.Upsert(p) {
			if t.metrics != nil {
				t.metrics.PeersDiscovered.Inc()
			}
			t.emit(Event{Type: EventPeerDiscovered, Peer: p})
		}
	}

	if dropped := t.registry.PruneStale(time.Now().UTC()); dropped > 0 {
		if t.metrics != nil {
			t.metrics.PeersExpired.Add(float64(dropped))
		}
	}
}

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		// Slow consumer: drop rather than stall discovery.
	}
}

// Connect establishes a connection to a known peer by performing the
// key exchange and deriving a per-connection symmetric key. Failure
// leaves no partial entry in the active-connections map.
func (t *Transport) Connect(ctx context.Context, peerID string) error {
	t.mu.Lock()
	if conn, ok := t.conns[peerID]; ok && conn.state == StateConnected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	peer, ok := t.registry.Get(peerID)
	if !ok {
		return &ConnectionError{PeerID: peerID, Err: errors.New("unknown peer")}
	}

	key, err := t.handshake(ctx, peer)
	if err != nil {
		if t.metrics != nil {
			t.metrics.ConnectionsFailed.Inc()
		}
		return &ConnectionError{PeerID: peerID, Err: err}
	}

	t.mu.Lock()
	t.conns[peerID] = &connection{peer: peer, key: key, state: StateConnected}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.ConnectionsOpened.Inc()
	}
	return nil
}

func (t *Transport) handshake(ctx context.Context, peer Peer) (crypto.SharedKey, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()

	selfPub, err := t.signingKey.PublicKey()
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(t.signingKey, protocol.KeyExchange, t.selfID, &protocol.KeyExchangePayload{
		ExchangeKey: t.kemPub.String(),
		SigningKey:  selfPub.String(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.sender.Send(ctx, peer.Address, env)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("handshake timeout after %s", t.cfg.HandshakeTimeout)
		}
		return nil, err
	}

	if err := resp.Verify(peer.PublicKey); err != nil {
		return nil, fmt.Errorf("handshake response: %w", err)
	}

	payload, err := protocol.DecodePayload[protocol.KeyExchangePayload](resp)
	if err != nil {
		return nil, err
	}

	peerKem, err := crypto.ParseKemPublicKey(payload.ExchangeKey)
	if err != nil {
		return nil, fmt.Errorf("peer exchange key: %w", err)
	}

	return crypto.DeriveSharedSecret(t.kemPriv, peerKem, ConnectionInfo(t.selfID, peer.ID))
}

// ConnectionInfo is the HKDF info string for a peer pair. Both sides
// must derive the identical value, so the IDs are ordered.
func ConnectionInfo(a, b string) []byte {
	ids := []string{a, b}
	sort.Strings(ids)
	return []byte("enfmesh-conn:" + ids[0] + ":" + ids[1])
}

// Connected reports whether a peer has an established connection.
func (t *Transport) Connected(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.conns[peerID]
	return ok && conn.state == StateConnected
}

// Request sends a signed, sealed request to a connected peer and returns
// the decoded response payload. The request carries its own deadline; an
// overrun surfaces as PeerTimeoutError without affecting other peers.
func (t *Transport) Request(ctx context.Context, peerID string, msgType protocol.MessageType, payload any) (*protocol.Envelope, error) {
	t.mu.Lock()
	conn, ok := t.conns[peerID]
	if !ok || conn.state != StateConnected {
		t.mu.Unlock()
		return nil, &ConnectionError{PeerID: peerID, Err: errors.New("not connected")}
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.ComparisonTimeout)
	t.inflight[peerID] = cancel
	t.mu.Unlock()

	defer func() {
		cancel()
		t.mu.Lock()
		delete(t.inflight, peerID)
		t.mu.Unlock()
	}()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	sealed, err := crypto.Seal(conn.key, raw)
	if err != nil {
		return nil, err
	}

	env, err := protocol.NewEnvelope(t.signingKey, msgType, t.selfID, sealed.Bytes())
	if err != nil {
		return nil, err
	}

	resp, err := t.sender.Send(reqCtx, conn.peer.Address, env)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &PeerTimeoutError{PeerID: peerID, Timeout: t.cfg.ComparisonTimeout}
		}
		return nil, err
	}

	if err := resp.Verify(conn.peer.PublicKey); err != nil {
		t.log.Warn("dropping response with invalid signature", "peer", peerID)
		return nil, err
	}
	return resp, nil
}

// OpenPayload unseals and decodes a response payload from a connected
// peer. The envelope must already be verified.
func OpenPayload[T any](t *Transport, peerID string, env *protocol.Envelope) (*T, error) {
	t.mu.Lock()
	conn, ok := t.conns[peerID]
	t.mu.Unlock()
	if !ok {
		return nil, &ConnectionError{PeerID: peerID, Err: errors.New("not connected")}
	}

	var sealedBytes []byte
	if err := json.Unmarshal(env.Payload, &sealedBytes); err != nil {
		return nil, err
	}

	sealed, err := crypto.ParseSealedMessage(sealedBytes)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.Open(conn.key, sealed)
	if err != nil {
		return nil, err
	}
	return protocol.UnmarshalMessage[T](raw)
}

// Disconnect tears down a peer connection, cancelling any outstanding
// request so it resolves as a timeout rather than hanging. Idempotent.
func (t *Transport) Disconnect(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cancel, ok := t.inflight[peerID]; ok {
		cancel()
		delete(t.inflight, peerID)
	}
	delete(t.conns, peerID)
}

// Close stops discovery and drops all connections.
func (t *Transport) Close() {
	t.StopDiscovery()

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cancel := range t.inflight {
		cancel()
		delete(t.inflight, id)
	}
	t.conns = make(map[string]*connection)
}
