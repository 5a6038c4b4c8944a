// Package model holds the shared data objects of spec.md §3 — the tegu
// counterpart is the gizmos package (data objects) split out from managers
// (goroutine-driven logic). Types here are plain structs; nothing in this
// package mutates shared state without a caller-supplied lock, so it is
// safe to pass values between components freely.
package model

import "time"

// POP is a Point-of-Presence: an aggregation site hosting one or more
// routers. Immutable after load (spec.md §3).
type POP struct {
	ID         string
	Name       string
	Location   string
	RouterIDs  []string
	Interfaces []string
}

// NetworkLink is an optical link between two POPs, carrying a fixed number
// of 12.5 GHz spectrum slots. FreeSlots and OccupiedBy are maintained by the
// Resource Store, never mutated directly by callers.
type NetworkLink struct {
	ID          string
	PopA        string
	PopB        string
	DistanceKM  float64
	TotalSlots  int
	FreeSlots   map[int]struct{}   // slot index -> present
	OccupiedBy  map[string][]int   // connection id -> held slot indices
}

// InterfaceStatus is the lifecycle state of a router interface.
type InterfaceStatus string

const (
	InterfaceAvailable InterfaceStatus = "AVAILABLE"
	InterfaceOccupied  InterfaceStatus = "OCCUPIED"
)

// Interface is addressed by (POP, router, name).
type Interface struct {
	Pop           string
	Router        string
	Name          string
	Status        InterfaceStatus
	ConnectionID  string // owner, set only when OCCUPIED
	AllocatedAt   time.Time
}

// Key returns the interface's (pop, router, name) composite key.
func (i Interface) Key() string {
	return i.Pop + ":" + i.Router + ":" + i.Name
}

// PathSegment is one link's contribution to a connection's end-to-end path.
type PathSegment struct {
	LinkID         string
	SrcPop         string
	DstPop         string
	AllocatedSlots []int
	SlotWidthGHz   float64
}

// ConnectionStatus is a state in the connection FSM (spec.md §4.3).
type ConnectionStatus string

const (
	StatusPending              ConnectionStatus = "PENDING"
	StatusSetupInProgress      ConnectionStatus = "SETUP_IN_PROGRESS"
	StatusActive               ConnectionStatus = "ACTIVE"
	StatusDegraded             ConnectionStatus = "DEGRADED"
	StatusReconfiguring        ConnectionStatus = "RECONFIGURING"
	StatusTeardownInProgress   ConnectionStatus = "TEARDOWN_IN_PROGRESS"
	StatusTerminated           ConnectionStatus = "TERMINATED"
	StatusFailed               ConnectionStatus = "FAILED"
)

// QoTSample is one telemetry reading for a connection.
type QoTSample struct {
	Timestamp   time.Time
	OSNRDB      float64
	PreFECBER   float64
	PostFECBER  float64
	TxPowerDBm  float64
	RxPowerDBm  float64
	TemperatureC float64
	FrequencyGHz float64
}

// Connection is a provisioned (or provisioning) optical connection.
type Connection struct {
	ID                 string
	SourcePop          string
	DestPop            string
	SourceInterface    string
	DestInterface      string
	PathSegments       []PathSegment
	BandwidthGbps       float64
	Modulation          string
	Status              ConnectionStatus
	SetupTimestamp      time.Time
	EstimatedOSNRdB     float64
	Samples             []QoTSample // bounded FIFO, most-recent last
	LastReconfigTime    time.Time
	ReconfigCount       int
	Metadata            map[string]string
}

// AgentStatus is the liveness/health state of an on-switch agent.
type AgentStatus string

const (
	AgentOnline   AgentStatus = "ONLINE"
	AgentDegraded AgentStatus = "DEGRADED"
	AgentOffline  AgentStatus = "OFFLINE"
	AgentUnknown  AgentStatus = "UNKNOWN"
)

// Agent is an on-switch process addressed as "{pop}-{router}".
type Agent struct {
	ID            string
	Pop           string
	Router        string
	Status        AgentStatus
	LastHeartbeat time.Time
	Capabilities  []string
	Interfaces    []string
}

// AgentID returns the canonical "{pop}-{router}" identifier.
func AgentID(pop, router string) string {
	return pop + "-" + router
}
