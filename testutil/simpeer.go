package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/protocol"
)

// SimPeer is an in-memory mesh participant that answers key exchanges
// and comparison requests the way a real node does, without sockets.
type SimPeer struct {
	ID         string
	Addr       string
	SigningKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	KemPub     crypto.KemPublicKey
	kemPriv    crypto.KemPrivateKey

	// Score is the confidence the peer reports for every comparison.
	Score float64

	// RefuseRequests makes the peer answer comparison requests with an
	// error instead of a report.
	RefuseRequests bool

	// CorruptReportSignature flips a signature byte on outgoing reports.
	CorruptReportSignature bool

	// Delay is applied before answering any envelope.
	Delay time.Duration

	mu       sync.Mutex
	sessions map[string]simSession
}

type simSession struct {
	key    crypto.SharedKey
	signer crypto.PublicKey
}

// NewSimPeer creates a simulated peer with fresh ephemeral keys.
func NewSimPeer(score float64) (*SimPeer, error) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	kemPub, kemPriv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &SimPeer{
		ID:         id,
		Addr:       "sim://" + id,
		SigningKey: priv,
		PublicKey:  pub,
		KemPub:     kemPub,
		kemPriv:    kemPriv,
		Score:      score,
		sessions:   make(map[string]simSession),
	}, nil
}

// Peer returns the discovery view of this simulated peer.
func (p *SimPeer) Peer() mesh.Peer {
	return mesh.Peer{
		ID:             p.ID,
		PublicKey:      p.PublicKey,
		ExchangeKey:    p.KemPub,
		Address:        p.Addr,
		Transport:      mesh.TransportWifiDirect,
		SignalStrength: 0.8,
		Capabilities:   mesh.Capabilities{Compare: true},
		LastSeen:       time.Now().UTC(),
	}
}

// HandleEnvelope processes one inbound envelope and returns the response.
func (p *SimPeer) HandleEnvelope(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch env.Type {
	case protocol.KeyExchange:
		return p.handleKeyExchange(env)
	case protocol.FingerprintRequest:
		return p.handleComparison(env)
	default:
		return nil, fmt.Errorf("unexpected message type %s", env.Type)
	}
}

func (p *SimPeer) handleKeyExchange(env *protocol.Envelope) (*protocol.Envelope, error) {
	payload, err := protocol.DecodePayload[protocol.KeyExchangePayload](env)
	if err != nil {
		return nil, err
	}

	signer, err := crypto.NewPublicKeyFromString(payload.SigningKey)
	if err != nil {
		return nil, err
	}
	if err := env.Verify(signer); err != nil {
		return nil, err
	}

	senderKem, err := crypto.ParseKemPublicKey(payload.ExchangeKey)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveSharedSecret(p.kemPriv, senderKem, mesh.ConnectionInfo(p.ID, env.SenderID))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sessions[env.SenderID] = simSession{key: key, signer: signer}
	p.mu.Unlock()

	return protocol.NewEnvelope(p.SigningKey, protocol.KeyExchange, p.ID, &protocol.KeyExchangePayload{
		ExchangeKey: p.KemPub.String(),
		SigningKey:  p.PublicKey.String(),
	})
}

func (p *SimPeer) handleComparison(env *protocol.Envelope) (*protocol.Envelope, error) {
	if p.RefuseRequests {
		return nil, errors.New("peer refused request")
	}

	p.mu.Lock()
	session, ok := p.sessions[env.SenderID]
	p.mu.Unlock()
	if !ok {
		return nil, errors.New("no session for sender")
	}

	if err := env.Verify(session.signer); err != nil {
		return nil, err
	}

	var sealedBytes []byte
	if err := json.Unmarshal(env.Payload, &sealedBytes); err != nil {
		return nil, err
	}
	sealed, err := crypto.ParseSealedMessage(sealedBytes)
	if err != nil {
		return nil, err
	}
	raw, err := crypto.Open(session.key, sealed)
	if err != nil {
		return nil, err
	}
	req, err := protocol.UnmarshalMessage[protocol.ComparisonRequest](raw)
	if err != nil {
		return nil, err
	}

	report := &protocol.PeerReport{
		ID:              uuid.NewString(),
		MediaItemID:     req.MediaItemID,
		PeerEphemeralID: p.ID,
		ConfidenceScore: p.Score,
		Timestamp:       time.Now().UTC(),
		PeerAddress:     p.Addr,
		ProximityLevel:  protocol.ProximityNear,
	}
	if err := protocol.SignReport(report, p.SigningKey); err != nil {
		return nil, err
	}
	if p.CorruptReportSignature {
		CorruptSignature(report)
	}

	respRaw, err := json.Marshal(&protocol.ComparisonResponse{
		MediaItemID:     req.MediaItemID,
		ConfidenceScore: p.Score,
		SignedReport:    report,
	})
	if err != nil {
		return nil, err
	}

	respSealed, err := crypto.Seal(session.key, respRaw)
	if err != nil {
		return nil, err
	}

	return protocol.NewEnvelope(p.SigningKey, protocol.FingerprintResponse, p.ID, respSealed.Bytes())
}

// SimNetwork routes envelopes to simulated peers by address. It
// implements mesh.EnvelopeSender.
type SimNetwork struct {
	mu    sync.RWMutex
	peers map[string]*SimPeer
}

// NewSimNetwork creates an empty in-memory network.
func NewSimNetwork() *SimNetwork {
	return &SimNetwork{peers: make(map[string]*SimPeer)}
}

// Add attaches a peer to the network.
func (n *SimNetwork) Add(p *SimPeer) {
	n.mu.Lock()
	n.peers[p.Addr] = p
	n.mu.Unlock()
}

// Send routes an envelope to the peer at the given address.
func (n *SimNetwork) Send(ctx context.Context, address string, env *protocol.Envelope) (*protocol.Envelope, error) {
	n.mu.RLock()
	peer, ok := n.peers[address]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no peer at %s", address)
	}
	return peer.HandleEnvelope(ctx, env)
}
