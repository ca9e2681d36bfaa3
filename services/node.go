package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/store"
)

// NodeConfig assembles a Node's dependencies.
type NodeConfig struct {
	// SelfID is the node's ephemeral mesh identity.
	SelfID string

	// SigningKey signs outgoing envelopes and peer reports.
	SigningKey crypto.PrivateKey

	// Store holds the node's own fingerprints, looked up when answering
	// comparison requests.
	Store store.Store

	// Address is the node's reachable base URL, advertised to peers.
	Address string

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// nodeSession is the per-requester state established by a key exchange.
type nodeSession struct {
	key    crypto.SharedKey
	signer crypto.PublicKey
}

// Node is the serving side of a mesh participant: it answers key
// exchanges and comparison requests from other nodes. The requesting
// side lives in mesh.Transport and the coordinator.
type Node struct {
	selfID     string
	address    string
	signingKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	kemPub     crypto.KemPublicKey
	kemPriv    crypto.KemPrivateKey

	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]nodeSession
}

// NewNode creates a node service with a fresh X25519 exchange key pair.
func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.SelfID == "" {
		return nil, errors.New("self ID is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	publicKey, err := cfg.SigningKey.PublicKey()
	if err != nil {
		return nil, err
	}
	kemPub, kemPriv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}

	return &Node{
		selfID:     cfg.SelfID,
		address:    cfg.Address,
		signingKey: cfg.SigningKey,
		publicKey:  publicKey,
		kemPub:     kemPub,
		kemPriv:    kemPriv,
		store:      cfg.Store,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
		sessions:   make(map[string]nodeSession),
	}, nil
}

// PeerInfo returns the discovery view of this node, suitable for
// registering with a rendezvous service.
func (n *Node) PeerInfo() mesh.Peer {
	return mesh.Peer{
		ID:           n.selfID,
		PublicKey:    n.publicKey,
		ExchangeKey:  n.kemPub,
		Address:      n.address,
		Transport:    mesh.TransportRelay,
		Capabilities: mesh.Capabilities{Compare: true, Store: true},
		LastSeen:     time.Now().UTC(),
	}
}

// SignPeerInfo wraps a peer descriptor in a signed message for
// rendezvous registration.
func (n *Node) SignPeerInfo(p *mesh.Peer) (*protocol.Signed[mesh.Peer], error) {
	return protocol.NewSigned(n.signingKey, p)
}

// RegisterRoutes registers the mesh message endpoint.
func (n *Node) RegisterRoutes(r chi.Router) {
	r.Post(MeshMessagePath, n.handleMeshMessage)
}

func (n *Node) handleMeshMessage(w http.ResponseWriter, req *http.Request) {
	env, err := protocol.DecodeMessage[protocol.Envelope](req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := n.HandleEnvelope(req.Context(), env)
	if err != nil {
		n.log.Warn("mesh message rejected", "type", env.Type, "sender", env.SenderID, "err", err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleEnvelope processes one inbound envelope and returns the signed
// response envelope. Unverifiable messages are rejected before any
// payload handling.
func (n *Node) HandleEnvelope(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	switch env.Type {
	case protocol.KeyExchange:
		return n.handleKeyExchange(env)
	case protocol.FingerprintRequest:
		return n.handleComparison(ctx, env)
	default:
		return nil, fmt.Errorf("unexpected message type %s", env.Type)
	}
}

// handleKeyExchange verifies the requester's envelope against the
// signing key it advertises, derives the per-connection symmetric key
// and answers with this node's own exchange material.
func (n *Node) handleKeyExchange(env *protocol.Envelope) (*protocol.Envelope, error) {
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

	key, err := crypto.DeriveSharedSecret(n.kemPriv, senderKem, mesh.ConnectionInfo(n.selfID, env.SenderID))
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.sessions[env.SenderID] = nodeSession{key: key, signer: signer}
	n.mu.Unlock()

	return protocol.NewEnvelope(n.signingKey, protocol.KeyExchange, n.selfID, &protocol.KeyExchangePayload{
		ExchangeKey: n.kemPub.String(),
		SigningKey:  n.publicKey.String(),
	})
}

// handleComparison unseals a comparison request, compares the carried
// fingerprint against this node's own extraction for the media item and
// answers with a signed report. No local fingerprint means a negative
// report, not an error.
func (n *Node) handleComparison(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	n.mu.Lock()
	session, ok := n.sessions[env.SenderID]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no session with %s", env.SenderID)
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

	score, proximity := n.scoreRequest(ctx, req)

	report := &protocol.PeerReport{
		ID:              uuid.NewString(),
		MediaItemID:     req.MediaItemID,
		PeerEphemeralID: n.selfID,
		ConfidenceScore: score,
		Timestamp:       time.Now().UTC(),
		PeerAddress:     n.address,
		ProximityLevel:  proximity,
	}
	if err := protocol.SignReport(report, n.signingKey); err != nil {
		return nil, err
	}

	if n.metrics != nil {
		n.metrics.ComparisonsServed.Inc()
	}

	respRaw, err := json.Marshal(&protocol.ComparisonResponse{
		MediaItemID:     req.MediaItemID,
		ConfidenceScore: score,
		SignedReport:    report,
	})
	if err != nil {
		return nil, err
	}

	respSealed, err := crypto.Seal(session.key, respRaw)
	if err != nil {
		return nil, err
	}

	return protocol.NewEnvelope(n.signingKey, protocol.FingerprintResponse, n.selfID, respSealed.Bytes())
}

// scoreRequest runs the actual fingerprint comparison. Missing local
// fingerprints and comparison failures both produce a zero-similarity
// negative report so the requester still gets a signed data point.
func (n *Node) scoreRequest(ctx context.Context, req *protocol.ComparisonRequest) (float64, protocol.ProximityLevel) {
	local, err := n.store.LoadFingerprint(ctx, req.MediaItemID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			n.log.Warn("fingerprint lookup failed", "mediaItem", req.MediaItemID, "err", err)
		}
		return 0, protocol.ProximityFar
	}

	remote := &enf.Fingerprint{
		Vector:            req.Vector,
		Hash:              req.FingerprintHash,
		MainsFrequency:    req.MainsFrequency,
		ExtractionQuality: req.ExtractionQuality,
		Duration:          local.Duration,
		SampleRate:        local.SampleRate,
	}

	cmp, err := enf.Compare(local, remote)
	if err != nil {
		n.log.Warn("comparison failed", "mediaItem", req.MediaItemID, "err", err)
		return 0, protocol.ProximityFar
	}

	score := cmp.Similarity
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, proximityLevel(cmp.Proximity)
}

func proximityLevel(p enf.Proximity) protocol.ProximityLevel {
	switch p {
	case enf.ProximitySameLocation:
		return protocol.ProximityNear
	case enf.ProximityNearby:
		return protocol.ProximityMedium
	default:
		return protocol.ProximityFar
	}
}
