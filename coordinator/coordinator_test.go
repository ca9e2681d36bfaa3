package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soundproof/enfmesh/coordinator"
	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/store"
	"github.com/soundproof/enfmesh/testutil"
)

type fixture struct {
	coord     *coordinator.Coordinator
	transport *mesh.Transport
	store     *store.MemoryStore
	network   *testutil.SimNetwork
}

func newFixture(t *testing.T, cfg *protocol.MeshConfig, peers ...*testutil.SimPeer) *fixture {
	t.Helper()

	network := testutil.NewSimNetwork()
	for _, p := range peers {
		network.Add(p)
	}

	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tr, err := mesh.NewTransport(mesh.Config{
		Mesh:       cfg,
		SelfID:     "self-node",
		SigningKey: priv,
		Sender:     network,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	for _, p := range peers {
		tr.Registry().Upsert(p.Peer())
	}

	mem := store.NewMemoryStore()
	coord := coordinator.New(coordinator.Config{
		Transport: tr,
		PublicKey: pub,
		Store:     mem,
	})

	return &fixture{coord: coord, transport: tr, store: mem, network: network}
}

func newPeers(t *testing.T, scores ...float64) []*testutil.SimPeer {
	t.Helper()
	peers := make([]*testutil.SimPeer, len(scores))
	for i, score := range scores {
		p, err := testutil.NewSimPeer(score)
		require.NoError(t, err)
		peers[i] = p
	}
	return peers
}

func collectScores(reports []*protocol.PeerReport) []float64 {
	scores := make([]float64, len(reports))
	for i, r := range reports {
		scores[i] = r.ConfidenceScore
	}
	return scores
}

func TestRequestComparisonsCollectsFromAllPeers(t *testing.T) {
	peers := newPeers(t, 0.9, 0.8, 0.7)
	f := newFixture(t, nil, peers...)

	fp := testutil.GenerateTestFingerprint()
	reports := f.coord.RequestComparisons(context.Background(), "media-1", fp)

	require.Len(t, reports, 3)
	require.ElementsMatch(t, []float64{0.9, 0.8, 0.7}, collectScores(reports))
	for _, r := range reports {
		require.Equal(t, "media-1", r.MediaItemID)
		require.NoError(t, protocol.VerifyReport(r))
	}
}

func TestRequestComparisonsPartialOnRefusal(t *testing.T) {
	peers := newPeers(t, 0.9, 0.8, 0.7)
	peers[1].RefuseRequests = true
	f := newFixture(t, nil, peers...)

	reports := f.coord.RequestComparisons(context.Background(), "media-1", testutil.GenerateTestFingerprint())

	require.Len(t, reports, 2)
	require.ElementsMatch(t, []float64{0.9, 0.7}, collectScores(reports))
}

func TestRequestComparisonsSlowPeerIsolated(t *testing.T) {
	peers := newPeers(t, 0.9, 0.8)

	cfg := &protocol.MeshConfig{
		HandshakeTimeout:  5 * time.Second,
		ComparisonTimeout: 100 * time.Millisecond,
	}
	f := newFixture(t, cfg, peers...)

	// Connect both up front so the slow peer's delay hits the request,
	// not the handshake.
	ctx := context.Background()
	require.NoError(t, f.transport.Connect(ctx, peers[0].ID))
	require.NoError(t, f.transport.Connect(ctx, peers[1].ID))
	peers[0].Delay = time.Second

	reports := f.coord.RequestComparisons(ctx, "media-1", testutil.GenerateTestFingerprint())

	require.Len(t, reports, 1)
	require.Equal(t, 0.8, reports[0].ConfidenceScore)
}

func TestRequestComparisonsNegativeReportIncluded(t *testing.T) {
	peers := newPeers(t, 0.0, 0.9)
	f := newFixture(t, nil, peers...)

	reports := f.coord.RequestComparisons(context.Background(), "media-1", testutil.GenerateTestFingerprint())

	require.Len(t, reports, 2)
	require.ElementsMatch(t, []float64{0.0, 0.9}, collectScores(reports))
}

func TestRequestComparisonsSkipsNonComparingPeers(t *testing.T) {
	peers := newPeers(t, 0.9)
	f := newFixture(t, nil, peers...)

	bystander, err := testutil.NewSimPeer(0.5)
	require.NoError(t, err)
	view := bystander.Peer()
	view.Capabilities.Compare = false
	f.transport.Registry().Upsert(view)

	reports := f.coord.RequestComparisons(context.Background(), "media-1", testutil.GenerateTestFingerprint())

	require.Len(t, reports, 1)
	require.Equal(t, 0.9, reports[0].ConfidenceScore)
}

func TestRequestComparisonsNoPeers(t *testing.T) {
	f := newFixture(t, nil)

	reports := f.coord.RequestComparisons(context.Background(), "media-1", testutil.GenerateTestFingerprint())
	require.Empty(t, reports)
}

func TestRequestComparisonsPersistsReports(t *testing.T) {
	peers := newPeers(t, 0.9, 0.8, 0.7)
	f := newFixture(t, nil, peers...)

	f.coord.RequestComparisons(context.Background(), "media-1", testutil.GenerateTestFingerprint())

	stored, err := f.store.ListPeerReports(context.Background(), "media-1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
}
