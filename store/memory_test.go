package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soundproof/enfmesh/testutil"
)

func TestMemoryStoreFingerprintRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	fp := testutil.GenerateTestFingerprint()

	require.NoError(t, s.SaveFingerprint(ctx, "media-1", fp))

	got, err := s.LoadFingerprint(ctx, "media-1")
	require.NoError(t, err)
	require.Equal(t, fp.Hash, got.Hash)
	require.Equal(t, fp.Vector, got.Vector)
	require.Equal(t, fp.MainsFrequency, got.MainsFrequency)

	// Stored copy is isolated from later mutation.
	fp.Vector[0] = -1
	again, err := s.LoadFingerprint(ctx, "media-1")
	require.NoError(t, err)
	require.NotEqual(t, -1.0, again.Vector[0])
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.LoadFingerprint(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReports(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r1, err := testutil.GenerateSignedReport(testutil.WithMediaItem("media-1"))
	require.NoError(t, err)
	r2, err := testutil.GenerateSignedReport(testutil.WithMediaItem("media-1"))
	require.NoError(t, err)
	other, err := testutil.GenerateSignedReport(testutil.WithMediaItem("media-2"))
	require.NoError(t, err)

	require.NoError(t, s.SavePeerReport(ctx, r1))
	require.NoError(t, s.SavePeerReport(ctx, r2))
	require.NoError(t, s.SavePeerReport(ctx, other))

	list, err := s.ListPeerReports(ctx, "media-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Saving the same report ID again does not duplicate it.
	require.NoError(t, s.SavePeerReport(ctx, r1))
	list, err = s.ListPeerReports(ctx, "media-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	empty, err := s.ListPeerReports(ctx, "media-3")
	require.NoError(t, err)
	require.Empty(t, empty)
}
