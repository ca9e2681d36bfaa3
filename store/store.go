// Package store is the persistence capability behind the mesh node:
// fingerprints of local captures, keyed by media item, and the peer
// reports collected for them. Durability guarantees are whatever the
// chosen backend gives; callers only rely on the interface.
package store

import (
	"context"
	"errors"

	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/protocol"
)

// ErrNotFound indicates no fingerprint is stored for the media item.
var ErrNotFound = errors.New("not found")

// Store persists fingerprints and collected peer reports.
type Store interface {
	// SaveFingerprint stores the fingerprint for a media item,
	// replacing any previous one.
	SaveFingerprint(ctx context.Context, mediaItemID string, fp *enf.Fingerprint) error

	// LoadFingerprint returns the fingerprint for a media item, or
	// ErrNotFound.
	LoadFingerprint(ctx context.Context, mediaItemID string) (*enf.Fingerprint, error)

	// SavePeerReport appends a collected report. Reports are immutable;
	// saving the same report ID twice overwrites the identical row.
	SavePeerReport(ctx context.Context, report *protocol.PeerReport) error

	// ListPeerReports returns all reports collected for a media item.
	ListPeerReports(ctx context.Context, mediaItemID string) ([]*protocol.PeerReport, error)

	// Close releases backend resources.
	Close() error
}
