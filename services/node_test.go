package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/services"
	"github.com/soundproof/enfmesh/store"
	"github.com/soundproof/enfmesh/testutil"
)

// directSender routes envelopes to in-process nodes by address.
type directSender struct {
	nodes map[string]*services.Node
}

func (s *directSender) Send(ctx context.Context, address string, env *protocol.Envelope) (*protocol.Envelope, error) {
	n, ok := s.nodes[address]
	if !ok {
		return nil, fmt.Errorf("no node at %s", address)
	}
	return n.HandleEnvelope(ctx, env)
}

func newTestNode(t *testing.T, id string) (*services.Node, *store.MemoryStore) {
	t.Helper()

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	node, err := services.NewNode(services.NodeConfig{
		SelfID:     id,
		SigningKey: priv,
		Store:      mem,
		Address:    "node://" + id,
	})
	require.NoError(t, err)
	return node, mem
}

func newRequester(t *testing.T, sender mesh.EnvelopeSender, peers ...mesh.Peer) *mesh.Transport {
	t.Helper()

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tr, err := mesh.NewTransport(mesh.Config{
		SelfID:     "requester",
		SigningKey: priv,
		Sender:     sender,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	for _, p := range peers {
		tr.Registry().Upsert(p)
	}
	return tr
}

func TestNodeAnswersComparisonForKnownMediaItem(t *testing.T) {
	node, mem := newTestNode(t, "node-a")
	ctx := context.Background()

	fp := testutil.GenerateTestFingerprint()
	require.NoError(t, mem.SaveFingerprint(ctx, "media-1", fp))

	sender := &directSender{nodes: map[string]*services.Node{"node://node-a": node}}
	tr := newRequester(t, sender, node.PeerInfo())

	require.NoError(t, tr.Connect(ctx, "node-a"))

	env, err := tr.Request(ctx, "node-a", protocol.FingerprintRequest, &protocol.ComparisonRequest{
		MediaItemID:       "media-1",
		FingerprintHash:   fp.Hash,
		Vector:            fp.Vector,
		MainsFrequency:    fp.MainsFrequency,
		ExtractionQuality: fp.ExtractionQuality,
	})
	require.NoError(t, err)

	resp, err := mesh.OpenPayload[protocol.ComparisonResponse](tr, "node-a", env)
	require.NoError(t, err)
	require.Equal(t, "media-1", resp.MediaItemID)
	require.GreaterOrEqual(t, resp.ConfidenceScore, 0.9)

	require.NotNil(t, resp.SignedReport)
	require.NoError(t, protocol.VerifyReport(resp.SignedReport))
	require.Equal(t, protocol.ProximityNear, resp.SignedReport.ProximityLevel)
}

func TestNodeReturnsNegativeReportForUnknownMediaItem(t *testing.T) {
	node, _ := newTestNode(t, "node-a")
	ctx := context.Background()

	sender := &directSender{nodes: map[string]*services.Node{"node://node-a": node}}
	tr := newRequester(t, sender, node.PeerInfo())

	require.NoError(t, tr.Connect(ctx, "node-a"))

	fp := testutil.GenerateTestFingerprint()
	env, err := tr.Request(ctx, "node-a", protocol.FingerprintRequest, &protocol.ComparisonRequest{
		MediaItemID:       "never-seen",
		FingerprintHash:   fp.Hash,
		Vector:            fp.Vector,
		MainsFrequency:    fp.MainsFrequency,
		ExtractionQuality: fp.ExtractionQuality,
	})
	require.NoError(t, err)

	resp, err := mesh.OpenPayload[protocol.ComparisonResponse](tr, "node-a", env)
	require.NoError(t, err)
	require.Equal(t, 0.0, resp.ConfidenceScore)
	require.NoError(t, protocol.VerifyReport(resp.SignedReport))
}

func TestNodeRejectsComparisonWithoutSession(t *testing.T) {
	node, _ := newTestNode(t, "node-a")

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := protocol.NewEnvelope(priv, protocol.FingerprintRequest, "stranger", []byte("{}"))
	require.NoError(t, err)

	_, err = node.HandleEnvelope(context.Background(), env)
	require.Error(t, err)
}

func TestNodeRejectsUnknownMessageType(t *testing.T) {
	node, _ := newTestNode(t, "node-a")

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	env, err := protocol.NewEnvelope(priv, protocol.Report, "stranger", []byte("{}"))
	require.NoError(t, err)

	_, err = node.HandleEnvelope(context.Background(), env)
	require.Error(t, err)
}

func TestNodeRejectsTamperedKeyExchange(t *testing.T) {
	node, _ := newTestNode(t, "node-a")

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub, err := priv.PublicKey()
	require.NoError(t, err)

	kemPub, _, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)

	env, err := protocol.NewEnvelope(priv, protocol.KeyExchange, "stranger", &protocol.KeyExchangePayload{
		ExchangeKey: kemPub.String(),
		SigningKey:  pub.String(),
	})
	require.NoError(t, err)
	env.SenderID = "someone-else"

	_, err = node.HandleEnvelope(context.Background(), env)
	require.ErrorIs(t, err, protocol.ErrInvalidSignature)
}
