package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload_Nested(t *testing.T) {
	env := map[string]interface{}{
		"type":    "telemetry",
		"payload": map[string]interface{}{"osnr": 19.5},
	}
	p := unwrapPayload(env)
	require.Equal(t, 19.5, p["osnr"])
}

func TestUnwrapPayload_Flat(t *testing.T) {
	env := map[string]interface{}{
		"type": "telemetry",
		"osnr": 19.5,
	}
	p := unwrapPayload(env)
	require.Equal(t, 19.5, p["osnr"])
}

func TestParseHeartbeat_NormalizesStatus(t *testing.T) {
	cases := map[string]string{
		"healthy":  "HEALTHY",
		"OK":       "HEALTHY",
		"up":       "HEALTHY",
		"degraded": "DEGRADED",
		"":         "DEGRADED",
	}
	for raw, want := range cases {
		evt := parseHeartbeat(map[string]interface{}{"agent_id": "POP-A-R1", "status": raw})
		require.Equal(t, want, evt.Status, "raw status %q", raw)
	}
}

func TestParseHeartbeat_ReadsNestedPayload(t *testing.T) {
	evt := parseHeartbeat(map[string]interface{}{
		"agent_id": "POP-A-R1",
		"status":   "healthy",
		"payload": map[string]interface{}{
			"pop_id": "POP-A", "router_id": "R1",
			"capabilities": []interface{}{"OTN", "FlexGrid"},
		},
	})
	require.Equal(t, "POP-A-R1", evt.AgentID)
	require.Equal(t, "POP-A", evt.Pop)
	require.Equal(t, "R1", evt.Router)
	require.Equal(t, []string{"OTN", "FlexGrid"}, evt.Capabilities)
}

func TestParseTelemetry_ReadsFields(t *testing.T) {
	evt := parseTelemetry(map[string]interface{}{
		"agent_id":      "POP-A-R1",
		"connection_id": "conn-1",
		"osnr":          17.2,
		"pre_fec_ber":   1e-4,
		"tx_power":      -3.5,
	})
	require.Equal(t, "POP-A-R1", evt.AgentID)
	require.Equal(t, "conn-1", evt.ConnectionID)
	require.Equal(t, 17.2, evt.OSNRDB)
	require.Equal(t, 1e-4, evt.PreFECBER)
	require.Equal(t, -3.5, evt.TxPowerDBm)
}

func TestParseTelemetry_ReadsNestedPayload(t *testing.T) {
	evt := parseTelemetry(map[string]interface{}{
		"agent_id": "POP-A-R1",
		"payload":  map[string]interface{}{"connection_id": "conn-2", "osnr": 21.0},
	})
	require.Equal(t, "conn-2", evt.ConnectionID)
	require.Equal(t, 21.0, evt.OSNRDB)
}

func TestParseAck_ReadsFields(t *testing.T) {
	evt := parseAck(map[string]interface{}{"command_id": "cmd-1", "agent_id": "POP-A-R1", "status": "ok"})
	require.Equal(t, "cmd-1", evt.CommandID)
	require.Equal(t, "POP-A-R1", evt.AgentID)
	require.Equal(t, "ok", evt.Status)
}
