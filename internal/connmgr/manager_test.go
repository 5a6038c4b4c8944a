package connmgr_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/connmgr"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/pathcompute"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/store"
)

func testTopology() ([]model.POP, []model.NetworkLink) {
	pops := []model.POP{
		{ID: "POP-A", RouterIDs: []string{"R1"}, Interfaces: []string{"eth0"}},
		{ID: "POP-B", RouterIDs: []string{"R1"}, Interfaces: []string{"eth0"}},
	}
	links := []model.NetworkLink{
		{ID: "LINK-AB", PopA: "POP-A", PopB: "POP-B", DistanceKM: 80, TotalSlots: 8},
	}
	return pops, links
}

func newManager(t *testing.T) (*connmgr.Manager, *store.MemoryStore) {
	t.Helper()
	pops, links := testTopology()
	st := store.NewMemoryStore()
	st.SeedTopology(pops, links)

	computer := pathcompute.New(st, pathcompute.Config{
		SlotWidthGHz:       12.5,
		SpectralEfficiency: map[string]float64{"QPSK": 2},
		DefaultSlots:       4,
	})
	mgr := connmgr.New(st, computer, pops, links, zerolog.Nop(), nil)
	return mgr, st
}

func TestCreateConnection_Succeeds(t *testing.T) {
	mgr, st := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop:     "POP-A",
		DestPop:       "POP-B",
		BandwidthGbps: 100,
		Modulation:    "QPSK",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusSetupInProgress, conn.Status)
	require.Len(t, conn.PathSegments, 1)

	free, err := st.GetAvailableSlots(ctx, "LINK-AB")
	require.NoError(t, err)
	require.Len(t, free, 8-len(conn.PathSegments[0].AllocatedSlots))
}

func TestCreateConnection_SameEndpointRejected(t *testing.T) {
	mgr, _ := newManager(t)
	_, err := mgr.CreateConnection(context.Background(), connmgr.CreateRequest{
		SourcePop: "POP-A",
		DestPop:   "POP-A",
	})
	require.Error(t, err)
}

func TestCreateConnection_UnknownPopRejected(t *testing.T) {
	mgr, _ := newManager(t)
	_, err := mgr.CreateConnection(context.Background(), connmgr.CreateRequest{
		SourcePop: "POP-A",
		DestPop:   "POP-Z",
	})
	require.Error(t, err)
}

func TestCreateConnection_ExhaustionRollsBackCleanly(t *testing.T) {
	mgr, st := newManager(t)
	ctx := context.Background()

	first, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 50, Modulation: "QPSK", // 50/2/12.5 = 2 slots
	})
	require.NoError(t, err)
	require.Len(t, first.PathSegments[0].AllocatedSlots, 2)

	before, err := st.GetAvailableSlots(ctx, "LINK-AB")
	require.NoError(t, err)
	require.Len(t, before, 6)

	_, err = mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 1000000, Modulation: "QPSK", // impossible to satisfy
	})
	require.Error(t, err)

	after, err := st.GetAvailableSlots(ctx, "LINK-AB")
	require.NoError(t, err)
	require.ElementsMatch(t, before, after, "failed create must not leak slot allocations")
}

func TestTeardown_IsIdempotent(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 100, Modulation: "QPSK",
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Teardown(ctx, conn.ID))
	require.NoError(t, mgr.Teardown(ctx, conn.ID)) // second call: no-op success

	_, ok := mgr.Get(conn.ID)
	require.False(t, ok)
}

func TestTeardown_ReleasesSlots(t *testing.T) {
	mgr, st := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 100, Modulation: "QPSK",
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Teardown(ctx, conn.ID))

	free, err := st.GetAvailableSlots(ctx, "LINK-AB")
	require.NoError(t, err)
	require.Len(t, free, 8)
}

func TestReconfigurationLifecycle(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 100, Modulation: "QPSK",
	})
	require.NoError(t, err)
	require.NoError(t, mgr.CompleteSetup(ctx, conn.ID))

	require.NoError(t, mgr.MarkDegraded(ctx, conn.ID))
	require.NoError(t, mgr.MarkDegraded(ctx, conn.ID)) // idempotent

	require.NoError(t, mgr.StartReconfiguration(ctx, conn.ID, "qot_degradation"))
	got, ok := mgr.Get(conn.ID)
	require.True(t, ok)
	require.Equal(t, model.StatusReconfiguring, got.Status)
	require.Zero(t, got.ReconfigCount, "count bumps only via RecordReconfiguration, after a real dispatch")

	require.NoError(t, mgr.RecordReconfiguration(ctx, conn.ID, got.SetupTimestamp))
	require.NoError(t, mgr.CompleteReconfiguration(ctx, conn.ID))

	got, ok = mgr.Get(conn.ID)
	require.True(t, ok)
	require.Equal(t, model.StatusActive, got.Status)
	require.Equal(t, 1, got.ReconfigCount)
}

func TestFailReconfiguration_ReturnsToDegraded(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 100, Modulation: "QPSK",
	})
	require.NoError(t, err)
	require.NoError(t, mgr.CompleteSetup(ctx, conn.ID))
	require.NoError(t, mgr.MarkDegraded(ctx, conn.ID))
	require.NoError(t, mgr.StartReconfiguration(ctx, conn.ID, "qot_degradation"))
	require.NoError(t, mgr.FailReconfiguration(ctx, conn.ID))

	got, ok := mgr.Get(conn.ID)
	require.True(t, ok)
	require.Equal(t, model.StatusDegraded, got.Status)
}

func TestRecordSample_BoundsFIFO(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	conn, err := mgr.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop: "POP-A", DestPop: "POP-B",
		BandwidthGbps: 100, Modulation: "QPSK",
	})
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		require.NoError(t, mgr.RecordSample(ctx, conn.ID, model.QoTSample{OSNRDB: float64(i)}))
	}

	got, ok := mgr.Get(conn.ID)
	require.True(t, ok)
	require.Len(t, got.Samples, 100)
	require.Equal(t, float64(149), got.Samples[len(got.Samples)-1].OSNRDB)
}
