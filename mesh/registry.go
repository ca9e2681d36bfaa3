package mesh

import (
	"sync"
	"time"
)

// Registry is the peer table. It is owned by the Transport: discovery
// loops are the only writers, everything else reads snapshots. Entries
// expire out of the live set after the staleness window.
type Registry struct {
	staleAfter time.Duration

	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry creates an empty registry with the given staleness window.
func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		staleAfter: staleAfter,
		peers:      make(map[string]*Peer),
	}
}

// Upsert inserts a newly discovered peer or refreshes an existing entry.
// Only LastSeen and SignalStrength are mutated on refresh; identity
// fields are fixed at first discovery. Returns true for a new insert.
func (r *Registry) Upsert(peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.peers[peer.ID]; ok {
		existing.LastSeen = peer.LastSeen
		existing.SignalStrength = peer.SignalStrength
		return false
	}

	p := peer
	r.peers[peer.ID] = &p
	return true
}

// Get returns a copy of the peer with the given ID.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// LivePeers returns copies of all peers within the staleness window.
func (r *Registry) LivePeers(now time.Time) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.Live(now, r.staleAfter) {
			live = append(live, *p)
		}
	}
	return live
}

// PruneStale removes peers outside the staleness window and returns how
// many were dropped.
func (r *Registry) PruneStale(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, p := range r.peers {
		if !p.Live(now, r.staleAfter) {
			delete(r.peers, id)
			dropped++
		}
	}
	return dropped
}

// Remove deletes a peer entry outright.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// Len returns the number of tracked peers, live or stale.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
