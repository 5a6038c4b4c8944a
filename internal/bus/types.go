// Package bus implements the Message Bus Client (spec.md §4.4): a Kafka
// producer/consumer pair over two per-tenant topics, command builders, and
// duck-typed parsing of the monitoring stream. Command/message shapes follow
// the teacher's managers/agent.go (agent_cmd/agent_msg JSON envelopes,
// per-agent addressing); the transport itself is github.com/IBM/sarama since
// nothing in the retrieval pack imports a Kafka client directly.
package bus

import "time"

// CommandType tags an outbound command (spec.md §6 wire format).
type CommandType string

const (
	CommandSetupConnection    CommandType = "setupConnection"
	CommandReconfigConnection CommandType = "reconfigConnection"
	CommandInterfaceControl   CommandType = "interfaceControl"
	CommandDiscovery          CommandType = "discovery"
)

// Command is the envelope shared by every outbound command. Fields unused by
// a given command type are left zero and omitted from the JSON (spec.md §6
// gives each command type its own subset of command_id/timestamp/
// target_agent/connection_id/reason/action/parameters).
type Command struct {
	CommandID    string      `json:"command_id"`
	Timestamp    time.Time   `json:"timestamp"`
	TargetAgent  string      `json:"target_agent,omitempty"` // empty on a discovery broadcast
	Type         CommandType `json:"type"`
	ConnectionID string      `json:"connection_id,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	Action       string      `json:"action,omitempty"`
	Parameters   interface{} `json:"parameters,omitempty"`
}

// SetupParameters is the `parameters` object of a setupConnection command:
// what one endpoint agent needs to provision its side of a connection.
type SetupParameters struct {
	PopID      string      `json:"pop_id"`
	RouterID   string      `json:"router_id"`
	Interface  string      `json:"interface"`
	Direction  string      `json:"direction"` // "source" or "destination"
	TxPower    float64     `json:"tx_power"`
	Frequency  float64     `json:"frequency"`
	Modulation string      `json:"modulation"`
	PathInfo   interface{} `json:"path_info"`
}

// ReconfigureParameters is the `parameters` object of a reconfigConnection
// command: the endpoint identity plus the new Tx power/frequency to apply.
type ReconfigureParameters struct {
	PopID     string  `json:"pop_id"`
	RouterID  string  `json:"router_id"`
	Interface string  `json:"interface,omitempty"`
	TxPower   float64 `json:"tx_power"`
	Frequency float64 `json:"frequency,omitempty"`
}

// InterfaceControlParameters is the `parameters` object of an
// interfaceControl command.
type InterfaceControlParameters struct {
	PopID     string `json:"pop_id"`
	RouterID  string `json:"router_id"`
	Interface string `json:"interface"`
	Action    string `json:"action"` // "up", "down", or "admin_down"
}

// HeartbeatEvent is a normalized inbound agentHealth/heartbeat record.
// AgentID is the wire `agent_id` ("{pop}-{router}"); Pop/Router are read out
// of the optional nested payload when the agent supplies them explicitly.
type HeartbeatEvent struct {
	AgentID      string
	Pop          string
	Router       string
	RawStatus    string
	Status       string // normalized: HEALTHY or DEGRADED
	Capabilities []string
	Interfaces   []string
	ReceivedAt   time.Time
}

// TelemetryEvent is a normalized inbound telemetry record.
type TelemetryEvent struct {
	AgentID      string
	ConnectionID string
	OSNRDB       float64
	PreFECBER    float64
	PostFECBER   float64
	TxPowerDBm   float64
	RxPowerDBm   float64
	TemperatureC float64
	FrequencyGHz float64
	ReceivedAt   time.Time
}

// AckEvent is a normalized inbound commandAck record.
type AckEvent struct {
	CommandID  string
	AgentID    string
	Status     string
	ReceivedAt time.Time
}
