package agentregistry_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/agentregistry"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/bus"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

func TestOnHeartbeat_CreatesAndRefreshes(t *testing.T) {
	r := agentregistry.New(60*time.Second, 5*time.Minute, zerolog.Nop(), nil)

	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-A", Router: "R1", Status: "HEALTHY", ReceivedAt: time.Now(),
	})

	a, ok := r.Get(model.AgentID("POP-A", "R1"))
	require.True(t, ok)
	require.Equal(t, model.AgentOnline, a.Status)

	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-A", Router: "R1", Status: "DEGRADED", ReceivedAt: time.Now(),
	})
	a, ok = r.Get(model.AgentID("POP-A", "R1"))
	require.True(t, ok)
	require.Equal(t, model.AgentDegraded, a.Status)
}

func TestResolve_FallsBackToSyntheticID(t *testing.T) {
	r := agentregistry.New(60*time.Second, 5*time.Minute, zerolog.Nop(), nil)
	require.Equal(t, "POP-A-R1", r.Resolve("POP-A", "R1"))
}

func TestResolve_UsesRegisteredOnlineAgent(t *testing.T) {
	r := agentregistry.New(60*time.Second, 5*time.Minute, zerolog.Nop(), nil)
	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-A", Router: "R1", Status: "HEALTHY", ReceivedAt: time.Now(),
	})
	require.Equal(t, model.AgentID("POP-A", "R1"), r.Resolve("POP-A", "R1"))
}

func TestResolve_StaleHeartbeatFallsBack(t *testing.T) {
	r := agentregistry.New(1*time.Millisecond, 5*time.Minute, zerolog.Nop(), nil)
	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-A", Router: "R1", Status: "HEALTHY", ReceivedAt: time.Now().Add(-time.Hour),
	})
	require.Equal(t, "POP-A-R1", r.Resolve("POP-A", "R1"))
}

func TestReap_EvictsStaleAgents(t *testing.T) {
	r := agentregistry.New(60*time.Second, 5*time.Minute, zerolog.Nop(), nil)
	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-A", Router: "R1", Status: "HEALTHY", ReceivedAt: time.Now().Add(-time.Hour),
	})
	r.OnHeartbeat(context.Background(), bus.HeartbeatEvent{
		Pop: "POP-B", Router: "R1", Status: "HEALTHY", ReceivedAt: time.Now(),
	})

	n := r.Reap(time.Now())
	require.Equal(t, 1, n)

	_, ok := r.Get(model.AgentID("POP-A", "R1"))
	require.False(t, ok)
	_, ok = r.Get(model.AgentID("POP-B", "R1"))
	require.True(t, ok)
}
