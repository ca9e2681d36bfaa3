package store

import (
	"context"
	"sync"

	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/protocol"
)

// MemoryStore implements Store without a database. Used by tests and by
// nodes running without persistence configured.
type MemoryStore struct {
	mu           sync.RWMutex
	fingerprints map[string]*enf.Fingerprint
	reports      map[string][]*protocol.PeerReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fingerprints: make(map[string]*enf.Fingerprint),
		reports:      make(map[string][]*protocol.PeerReport),
	}
}

// SaveFingerprint stores a fingerprint copy keyed by media item.
func (s *MemoryStore) SaveFingerprint(_ context.Context, mediaItemID string, fp *enf.Fingerprint) error {
	cp := *fp
	cp.Vector = append([]float64(nil), fp.Vector...)

	s.mu.Lock()
	s.fingerprints[mediaItemID] = &cp
	s.mu.Unlock()
	return nil
}

// LoadFingerprint returns a copy of the stored fingerprint.
func (s *MemoryStore) LoadFingerprint(_ context.Context, mediaItemID string) (*enf.Fingerprint, error) {
	s.mu.RLock()
	fp, ok := s.fingerprints[mediaItemID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	cp := *fp
	cp.Vector = append([]float64(nil), fp.Vector...)
	return &cp, nil
}

// SavePeerReport appends a report, replacing an earlier row with the
// same report ID.
func (s *MemoryStore) SavePeerReport(_ context.Context, report *protocol.PeerReport) error {
	cp := *report

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.reports[report.MediaItemID]
	for i, existing := range list {
		if existing.ID == report.ID {
			list[i] = &cp
			return nil
		}
	}
	s.reports[report.MediaItemID] = append(list, &cp)
	return nil
}

// ListPeerReports returns copies of all reports for a media item.
func (s *MemoryStore) ListPeerReports(_ context.Context, mediaItemID string) ([]*protocol.PeerReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.reports[mediaItemID]
	out := make([]*protocol.PeerReport, len(list))
	for i, r := range list {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
