// Package coordinator fans a comparison request out to every live peer
// and collects their signed reports. One failed or slow peer never
// affects the rest; the caller gets whatever subset arrived.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/store"
)

// Config assembles a Coordinator's dependencies.
type Config struct {
	Transport *mesh.Transport

	// PublicKey is the requester's ephemeral signing key, advertised in
	// outgoing requests so peers can address their reports.
	PublicKey crypto.PublicKey

	// Store, when set, persists every collected report. Optional.
	Store store.Store

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Coordinator drives the comparison fan-out for one node.
type Coordinator struct {
	transport *mesh.Transport
	publicKey crypto.PublicKey
	store     store.Store
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Coordinator{
		transport: cfg.Transport,
		publicKey: cfg.PublicKey,
		store:     cfg.Store,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
	}
}

// RequestComparisons asks every live comparison-capable peer to judge
// the fingerprint and returns the reports that arrived. Peers are
// connected on demand; failures and timeouts only shrink the result.
// Negative reports (zero similarity) are collected like any other.
func (c *Coordinator) RequestComparisons(ctx context.Context, mediaItemID string, fp *enf.Fingerprint) []*protocol.PeerReport {
	peers := c.transport.Registry().LivePeers(time.Now().UTC())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []*protocol.PeerReport
	)

	for _, peer := range peers {
		if !peer.Capabilities.Compare {
			continue
		}

		wg.Add(1)
		go func(peer mesh.Peer) {
			defer wg.Done()

			report, err := c.requestOne(ctx, peer, mediaItemID, fp)
			if err != nil {
				c.log.Warn("peer comparison failed", "peer", peer.ID, "err", err)
				return
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(peer)
	}

	wg.Wait()
	return reports
}

// requestOne runs the full exchange with a single peer: connect if
// needed, send the sealed request, verify and unwrap the report.
func (c *Coordinator) requestOne(ctx context.Context, peer mesh.Peer, mediaItemID string, fp *enf.Fingerprint) (*protocol.PeerReport, error) {
	if !c.transport.Connected(peer.ID) {
		if err := c.transport.Connect(ctx, peer.ID); err != nil {
			return nil, err
		}
	}

	req := &protocol.ComparisonRequest{
		MediaItemID:        mediaItemID,
		FingerprintHash:    fp.Hash,
		EphemeralPublicKey: c.publicKey.String(),
		Vector:             fp.Vector,
		MainsFrequency:     fp.MainsFrequency,
		ExtractionQuality:  fp.ExtractionQuality,
	}

	env, err := c.transport.Request(ctx, peer.ID, protocol.FingerprintRequest, req)
	if err != nil {
		return nil, err
	}

	resp, err := mesh.OpenPayload[protocol.ComparisonResponse](c.transport, peer.ID, env)
	if err != nil {
		return nil, err
	}
	if resp.MediaItemID != mediaItemID {
		return nil, &mesh.ConnectionError{PeerID: peer.ID, Err: errMediaItemMismatch}
	}
	if resp.SignedReport == nil {
		return nil, &mesh.ConnectionError{PeerID: peer.ID, Err: errMissingReport}
	}

	if c.metrics != nil {
		c.metrics.ReportsCollected.Inc()
	}

	if c.store != nil {
		if err := c.store.SavePeerReport(ctx, resp.SignedReport); err != nil {
			c.log.Warn("persisting report failed", "report", resp.SignedReport.ID, "err", err)
		}
	}

	return resp.SignedReport, nil
}
