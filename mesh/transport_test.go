package mesh_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/testutil"
)

func newTestTransport(t *testing.T, cfg *protocol.MeshConfig, peers ...*testutil.SimPeer) (*mesh.Transport, *testutil.SimNetwork) {
	t.Helper()

	network := testutil.NewSimNetwork()
	discovered := make([]mesh.Peer, 0, len(peers))
	for _, p := range peers {
		network.Add(p)
		discovered = append(discovered, p.Peer())
	}

	_, priv, err := testutil.GenerateTestKeyPair()
	require.NoError(t, err)

	tr, err := mesh.NewTransport(mesh.Config{
		Mesh:       cfg,
		SelfID:     "self-node",
		SigningKey: priv,
		Sender:     network,
	}, &mesh.StaticDiscoverer{Transport: mesh.TransportWifiDirect, Peers: discovered})
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	return tr, network
}

func seedPeer(t *testing.T, tr *mesh.Transport, p *testutil.SimPeer) {
	t.Helper()
	require.True(t, tr.Registry().Upsert(p.Peer()))
}

func comparisonRequest() *protocol.ComparisonRequest {
	fp := testutil.GenerateTestFingerprint()
	return &protocol.ComparisonRequest{
		MediaItemID:       "media-1",
		FingerprintHash:   fp.Hash,
		Vector:            fp.Vector,
		MainsFrequency:    fp.MainsFrequency,
		ExtractionQuality: fp.ExtractionQuality,
	}
}

func TestDiscoveryPopulatesRegistry(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)
	tr, _ := newTestTransport(t, nil, peer)

	tr.StartDiscovery(context.Background())
	defer tr.StopDiscovery()

	select {
	case ev := <-tr.Events():
		require.Equal(t, mesh.EventPeerDiscovered, ev.Type)
		require.Equal(t, peer.ID, ev.Peer.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no discovery event")
	}

	got, ok := tr.Registry().Get(peer.ID)
	require.True(t, ok)
	require.Equal(t, peer.Addr, got.Address)
}

func TestDiscoveryStartStopIdempotent(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)
	tr, _ := newTestTransport(t, nil, peer)

	ctx := context.Background()
	tr.StartDiscovery(ctx)
	tr.StartDiscovery(ctx)
	tr.StopDiscovery()
	tr.StopDiscovery()

	tr.StartDiscovery(ctx)
	tr.StopDiscovery()
}

func TestConnectUnknownPeer(t *testing.T) {
	tr, _ := newTestTransport(t, nil)

	err := tr.Connect(context.Background(), "nobody")

	var connErr *mesh.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "nobody", connErr.PeerID)
}

func TestConnectHandshakeFailureLeavesNoConnection(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)

	// Peer is discovered but absent from the network, so the key
	// exchange cannot be delivered.
	tr, _ := newTestTransport(t, nil)
	seedPeer(t, tr, peer)

	err = tr.Connect(context.Background(), peer.ID)

	var connErr *mesh.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.False(t, tr.Connected(peer.ID))
}

func TestConnectAndRequestRoundTrip(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.87)
	require.NoError(t, err)
	tr, _ := newTestTransport(t, nil, peer)
	seedPeer(t, tr, peer)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx, peer.ID))
	require.True(t, tr.Connected(peer.ID))

	// Second connect is a no-op.
	require.NoError(t, tr.Connect(ctx, peer.ID))

	resp, err := tr.Request(ctx, peer.ID, protocol.FingerprintRequest, comparisonRequest())
	require.NoError(t, err)
	require.Equal(t, protocol.FingerprintResponse, resp.Type)

	payload, err := mesh.OpenPayload[protocol.ComparisonResponse](tr, peer.ID, resp)
	require.NoError(t, err)
	require.Equal(t, "media-1", payload.MediaItemID)
	require.Equal(t, 0.87, payload.ConfidenceScore)
	require.NotNil(t, payload.SignedReport)
	require.NoError(t, protocol.VerifyReport(payload.SignedReport))
}

func TestRequestTimesOutIndependently(t *testing.T) {
	slow, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)
	fast, err := testutil.NewSimPeer(0.8)
	require.NoError(t, err)

	cfg := &protocol.MeshConfig{ComparisonTimeout: 100 * time.Millisecond}
	tr, _ := newTestTransport(t, cfg, slow, fast)
	seedPeer(t, tr, slow)
	seedPeer(t, tr, fast)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx, slow.ID))
	require.NoError(t, tr.Connect(ctx, fast.ID))

	slow.Delay = time.Second

	_, err = tr.Request(ctx, slow.ID, protocol.FingerprintRequest, comparisonRequest())
	var timeoutErr *mesh.PeerTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, slow.ID, timeoutErr.PeerID)

	// The slow peer's deadline never affects the fast one.
	resp, err := tr.Request(ctx, fast.ID, protocol.FingerprintRequest, comparisonRequest())
	require.NoError(t, err)
	require.NotNil(t, resp)
}

type tamperingSender struct {
	inner mesh.EnvelopeSender
}

func (s *tamperingSender) Send(ctx context.Context, address string, env *protocol.Envelope) (*protocol.Envelope, error) {
	resp, err := s.inner.Send(ctx, address, env)
	if err != nil {
		return nil, err
	}
	if resp.Type == protocol.FingerprintResponse && len(resp.Signature) > 0 {
		resp.Signature[0] ^= 0xFF
	}
	return resp, nil
}

func TestRequestRejectsTamperedResponse(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)

	network := testutil.NewSimNetwork()
	network.Add(peer)

	_, priv, err := testutil.GenerateTestKeyPair()
	require.NoError(t, err)

	tr, err := mesh.NewTransport(mesh.Config{
		SelfID:     "self-node",
		SigningKey: priv,
		Sender:     &tamperingSender{inner: network},
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	seedPeer(t, tr, peer)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx, peer.ID))

	_, err = tr.Request(ctx, peer.ID, protocol.FingerprintRequest, comparisonRequest())
	require.ErrorIs(t, err, protocol.ErrInvalidSignature)
}

func TestDisconnectIdempotent(t *testing.T) {
	peer, err := testutil.NewSimPeer(0.9)
	require.NoError(t, err)
	tr, _ := newTestTransport(t, nil, peer)
	seedPeer(t, tr, peer)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx, peer.ID))

	tr.Disconnect(peer.ID)
	tr.Disconnect(peer.ID)
	require.False(t, tr.Connected(peer.ID))

	_, err = tr.Request(ctx, peer.ID, protocol.FingerprintRequest, comparisonRequest())
	var connErr *mesh.ConnectionError
	require.ErrorAs(t, err, &connErr)
}
