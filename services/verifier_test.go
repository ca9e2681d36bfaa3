package services_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soundproof/enfmesh/aggregator"
	"github.com/soundproof/enfmesh/coordinator"
	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/services"
	"github.com/soundproof/enfmesh/store"
	"github.com/soundproof/enfmesh/testutil"
)

// synthHum builds a mains-hum-like tone with slow amplitude drift so the
// extracted vector has usable variance.
func synthHum(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = 0.8 * math.Sin(2*math.Pi*freq*t) * (1 + 0.3*math.Sin(2*math.Pi*0.5*t))
	}
	return samples
}

func newVerifier(t *testing.T, scores ...float64) (*services.Verifier, *store.MemoryStore) {
	t.Helper()

	network := testutil.NewSimNetwork()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tr, err := mesh.NewTransport(mesh.Config{
		SelfID:     "verifier-node",
		SigningKey: priv,
		Sender:     network,
	})
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	for _, score := range scores {
		p, err := testutil.NewSimPeer(score)
		require.NoError(t, err)
		network.Add(p)
		tr.Registry().Upsert(p.Peer())
	}

	mem := store.NewMemoryStore()
	v := &services.Verifier{
		Extractor: enf.NewExtractor(enf.DefaultExtractorConfig()),
		Coordinator: coordinator.New(coordinator.Config{
			Transport: tr,
			PublicKey: pub,
			Store:     mem,
		}),
		Aggregator: aggregator.New(nil, nil),
		Options:    aggregator.DefaultOptions(),
		Store:      mem,
	}
	return v, mem
}

func TestVerifyEndToEnd(t *testing.T) {
	v, mem := newVerifier(t, 0.9, 0.92, 0.88)
	ctx := context.Background()

	samples := synthHum(50, 8000, 6)
	result, err := v.Verify(ctx, "media-1", samples, 8000)
	require.NoError(t, err)

	require.Equal(t, "media-1", result.MediaItemID)
	require.Equal(t, 50.0, result.Fingerprint.MainsFrequency)

	require.Equal(t, 3, result.Aggregation.ReportCount)
	require.InDelta(t, 0.9, result.Aggregation.AggregatedScore, 0.02)
	require.Equal(t, aggregator.ConsensusHigh, result.Aggregation.ConsensusLevel)

	require.Equal(t, aggregator.RiskLow, result.Tamper.RiskLevel)
	require.False(t, result.Tamper.TamperingLikely)

	// The extracted fingerprint was persisted for later peer lookups.
	stored, err := mem.LoadFingerprint(ctx, "media-1")
	require.NoError(t, err)
	require.Equal(t, result.Fingerprint.Hash, stored.Hash)
}

func TestVerifyRejectsShortAudio(t *testing.T) {
	v, _ := newVerifier(t, 0.9, 0.9, 0.9)

	_, err := v.Verify(context.Background(), "media-1", synthHum(50, 8000, 2), 8000)

	var tooShort *enf.AudioTooShortError
	require.ErrorAs(t, err, &tooShort)
}

func TestVerifyFailsWithTooFewPeers(t *testing.T) {
	v, _ := newVerifier(t, 0.9)

	_, err := v.Verify(context.Background(), "media-1", synthHum(50, 8000, 6), 8000)

	var insufficient *aggregator.InsufficientReportsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 1, insufficient.Got)
}
