package controller

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/agentregistry"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/bus"
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

func newTestController(t *testing.T) (*Controller, *fakeSender) {
	t.Helper()
	pops, links := testTopology()
	st := store.NewMemoryStore()
	st.SeedTopology(pops, links)

	computer := pathcompute.New(st, pathcompute.Config{
		SlotWidthGHz:       12.5,
		SpectralEfficiency: map[string]float64{"QPSK": 2},
		DefaultSlots:       4,
	})
	conns := connmgr.New(st, computer, pops, links, zerolog.Nop(), nil)
	agents := agentregistry.New(0, 0, zerolog.Nop(), nil)

	fs := &fakeSender{}
	c := &Controller{
		st:     st,
		conns:  conns,
		agents: agents,
		send:   fs,
		log:    zerolog.Nop(),
	}
	return c, fs
}

// fakeSender records every sent command and can be configured to fail
// sends to a chosen target agent, used instead of a live bus.Client. It
// also implements healthChecker so HealthCheck's bus probe has something
// to assert against without a live broker.
type fakeSender struct {
	sent    []sentCmd
	failFor string
	healthy bool
}

func (f *fakeSender) Healthy() bool { return f.healthy }

type sentCmd struct {
	target string
	cmd    bus.Command
}

func (f *fakeSender) Send(_ context.Context, targetAgent string, value interface{}) error {
	if targetAgent == f.failFor {
		return errString("send failed")
	}
	cmd, _ := value.(bus.Command)
	f.sent = append(f.sent, sentCmd{target: targetAgent, cmd: cmd})
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

func TestCreateConnection_DispatchesSetupToBothEndpoints(t *testing.T) {
	c, fs := newTestController(t)
	ctx := context.Background()

	conn, err := c.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop:     "POP-A",
		SourceRouter:  "R1",
		DestPop:       "POP-B",
		DestRouter:    "R1",
		BandwidthGbps: 100,
		Modulation:    "QPSK",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, conn.Status)
	require.Len(t, fs.sent, 2)
	require.Equal(t, bus.CommandSetupConnection, fs.sent[0].cmd.Type)
	require.Equal(t, bus.CommandSetupConnection, fs.sent[1].cmd.Type)
	require.Equal(t, conn.ID, fs.sent[0].cmd.ConnectionID)
}

func TestCreateConnection_FailsSetupOnDispatchError(t *testing.T) {
	c, fs := newTestController(t)
	fs.failFor = "POP-B-R1"
	ctx := context.Background()

	_, err := c.CreateConnection(ctx, connmgr.CreateRequest{
		SourcePop:     "POP-A",
		SourceRouter:  "R1",
		DestPop:       "POP-B",
		DestRouter:    "R1",
		BandwidthGbps: 100,
		Modulation:    "QPSK",
	})
	require.Error(t, err)

	conns := c.conns.List()
	require.Len(t, conns, 1)
	require.Equal(t, model.StatusFailed, conns[0].Status)
}

func TestRouterOf_ReadsFoldedMetadata(t *testing.T) {
	conn := &model.Connection{Metadata: map[string]string{"_source_router": "R1", "_dest_router": "R2"}}
	require.Equal(t, "R1", routerOf(conn, true))
	require.Equal(t, "R2", routerOf(conn, false))
}

func TestRouterOf_NilMetadata(t *testing.T) {
	conn := &model.Connection{}
	require.Equal(t, "", routerOf(conn, true))
}

func TestHealthCheck_AggregatesStoreBusAndAgents(t *testing.T) {
	c, fs := newTestController(t)
	fs.healthy = true
	ctx := context.Background()

	c.agents.OnHeartbeat(ctx, bus.HeartbeatEvent{AgentID: "POP-A-R1", Status: "HEALTHY"})
	c.agents.OnHeartbeat(ctx, bus.HeartbeatEvent{AgentID: "POP-B-R1", Status: "DEGRADED"})

	h, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	require.True(t, h.StoreHealthy)
	require.True(t, h.BusHealthy)
	require.Equal(t, 2, h.AgentsKnown)
	require.Equal(t, 1, h.AgentsOnline)
}

func TestHealthCheck_BusUnhealthyReportsFalse(t *testing.T) {
	c, fs := newTestController(t)
	fs.healthy = false

	h, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	require.False(t, h.BusHealthy)
	require.Equal(t, 0, h.AgentsKnown)
}
