package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/protocol"
)

// Rendezvous is the relay-transport discovery service. Nodes that cannot
// see each other directly register here and poll /peers; the service
// only brokers discovery, never message payloads.
type Rendezvous struct {
	meshConfig *protocol.MeshConfig
	log        *slog.Logger

	mu    sync.RWMutex
	peers map[string]mesh.Peer
}

// NewRendezvous creates a rendezvous service.
func NewRendezvous(meshConfig *protocol.MeshConfig, log *slog.Logger) *Rendezvous {
	if log == nil {
		log = slog.Default()
	}
	return &Rendezvous{
		meshConfig: meshConfig.WithDefaults(),
		log:        log,
		peers:      make(map[string]mesh.Peer),
	}
}

// RegisterRoutes registers the rendezvous endpoints.
func (r *Rendezvous) RegisterRoutes(router chi.Router) {
	router.Post("/register", r.handleRegister)
	router.Delete("/unregister/{id}", r.handleUnregister)
	router.Get("/peers", r.handleGetPeers)
	router.Get("/config", r.handleGetConfig)
}

// handleRegister accepts a self-signed peer registration. The signer
// must be the key the peer claims as its identity, so a registration
// cannot impersonate another peer.
func (r *Rendezvous) handleRegister(w http.ResponseWriter, req *http.Request) {
	var signed protocol.Signed[mesh.Peer]
	if err := json.NewDecoder(req.Body).Decode(&signed); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	peer, signer, err := signed.Recover()
	if err != nil {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	if !signer.Equal(peer.PublicKey) {
		http.Error(w, "signer does not match claimed public key", http.StatusForbidden)
		return
	}
	if peer.ID == "" || peer.Address == "" {
		http.Error(w, "peer id and address are required", http.StatusBadRequest)
		return
	}

	entry := *peer
	entry.LastSeen = time.Now().UTC()

	r.mu.Lock()
	r.peers[entry.ID] = entry
	r.mu.Unlock()

	r.log.Info("peer registered", "peer", entry.ID, "address", entry.Address)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"registered": entry.ID})
}

func (r *Rendezvous) handleUnregister(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")

	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// handleGetPeers returns all registrations still inside the staleness
// window. Expired entries are dropped lazily on read.
func (r *Rendezvous) handleGetPeers(w http.ResponseWriter, req *http.Request) {
	now := time.Now().UTC()

	r.mu.Lock()
	live := make([]mesh.Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if !p.Live(now, r.meshConfig.PeerStaleAfter) {
			delete(r.peers, id)
			continue
		}
		live = append(live, p)
	}
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(live)
}

func (r *Rendezvous) handleGetConfig(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(r.meshConfig)
}

// RegisterWith announces a node to a rendezvous service. Called
// periodically so the registration never goes stale.
func RegisterWith(client *http.Client, baseURL string, signed *protocol.Signed[mesh.Peer]) error {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := protocol.SerializeMessage(signed)
	if err != nil {
		return err
	}

	resp, err := client.Post(baseURL+"/register", "application/json", jsonBody(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RegistrationError{Status: resp.StatusCode}
	}
	return nil
}
