package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPeer(id string, lastSeen time.Time) Peer {
	return Peer{
		ID:             id,
		Address:        "sim://" + id,
		Transport:      TransportWifiDirect,
		SignalStrength: 0.5,
		LastSeen:       lastSeen,
	}
}

func TestRegistryUpsertInsertsAndRefreshes(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	now := time.Now().UTC()

	require.True(t, reg.Upsert(testPeer("a", now)))
	require.False(t, reg.Upsert(testPeer("a", now.Add(time.Minute))))
	require.Equal(t, 1, reg.Len())
}

func TestRegistryRefreshKeepsIdentityFields(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	now := time.Now().UTC()
	reg.Upsert(testPeer("a", now))

	changed := testPeer("a", now.Add(time.Minute))
	changed.Address = "sim://elsewhere"
	changed.SignalStrength = 0.9
	reg.Upsert(changed)

	got, ok := reg.Get("a")
	require.True(t, ok)
	require.Equal(t, "sim://a", got.Address)
	require.Equal(t, 0.9, got.SignalStrength)
	require.Equal(t, now.Add(time.Minute), got.LastSeen)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	reg.Upsert(testPeer("a", time.Now().UTC()))

	got, ok := reg.Get("a")
	require.True(t, ok)
	got.Address = "sim://mutated"

	again, _ := reg.Get("a")
	require.Equal(t, "sim://a", again.Address)
}

func TestRegistryLivePeersExcludesStale(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	now := time.Now().UTC()
	reg.Upsert(testPeer("fresh", now))
	reg.Upsert(testPeer("stale", now.Add(-10*time.Minute)))

	live := reg.LivePeers(now)
	require.Len(t, live, 1)
	require.Equal(t, "fresh", live[0].ID)
	require.Equal(t, 2, reg.Len())
}

func TestRegistryPruneStale(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	now := time.Now().UTC()
	reg.Upsert(testPeer("fresh", now))
	reg.Upsert(testPeer("stale", now.Add(-6*time.Minute)))
	reg.Upsert(testPeer("staler", now.Add(-time.Hour)))

	require.Equal(t, 2, reg.PruneStale(now))
	require.Equal(t, 1, reg.Len())

	_, ok := reg.Get("stale")
	require.False(t, ok)
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)
	reg.Upsert(testPeer("a", time.Now().UTC()))

	reg.Remove("a")
	reg.Remove("a")

	require.Equal(t, 0, reg.Len())
}

func TestPeerLiveBoundary(t *testing.T) {
	now := time.Now().UTC()
	p := testPeer("a", now.Add(-5*time.Minute))

	require.True(t, p.Live(now, 5*time.Minute))
	require.False(t, p.Live(now.Add(time.Second), 5*time.Minute))
}
