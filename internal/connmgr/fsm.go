// Package connmgr implements the Connection Manager (spec.md §4.3): the
// connection finite-state machine and the multi-resource transaction that
// materializes a connection across the Resource Store and Path Computer.
// Grounded on the teacher's gizmos/pledge.go (the Pledge record as the
// connection-lifecycle object) and jhkimqd-chaos-utils's
// pkg/core/orchestrator (int-enum state with String(), state-transition
// orchestration loop).
package connmgr

import (
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// Event is an FSM input (spec.md §4.3).
type Event string

const (
	EvSetupRequested      Event = "SETUP_REQUESTED"
	EvSetupCompleted      Event = "SETUP_COMPLETED"
	EvSetupFailed         Event = "SETUP_FAILED"
	EvDegradationDetected Event = "DEGRADATION_DETECTED"
	EvReconfigRequested   Event = "RECONFIG_REQUESTED"
	EvReconfigCompleted   Event = "RECONFIG_COMPLETED"
	EvReconfigFailed      Event = "RECONFIG_FAILED"
	EvTeardownRequested   Event = "TEARDOWN_REQUESTED"
	EvTeardownCompleted   Event = "TEARDOWN_COMPLETED"
	EvTeardownFailed      Event = "TEARDOWN_FAILED"
)

// transitions is the table of spec.md §4.3. Unlisted (state, event) pairs
// are rejected with FSM_REJECT.
var transitions = map[model.ConnectionStatus]map[Event]model.ConnectionStatus{
	model.StatusPending: {
		EvSetupRequested: model.StatusSetupInProgress,
		EvSetupFailed:     model.StatusFailed,
	},
	model.StatusSetupInProgress: {
		EvSetupCompleted:    model.StatusActive,
		EvSetupFailed:       model.StatusFailed,
		EvTeardownRequested: model.StatusTeardownInProgress,
	},
	model.StatusActive: {
		EvDegradationDetected: model.StatusDegraded,
		EvReconfigRequested:   model.StatusReconfiguring,
		EvTeardownRequested:   model.StatusTeardownInProgress,
	},
	model.StatusDegraded: {
		EvReconfigRequested: model.StatusReconfiguring,
		EvTeardownRequested: model.StatusTeardownInProgress,
	},
	model.StatusReconfiguring: {
		EvReconfigCompleted: model.StatusActive,
		EvReconfigFailed:    model.StatusDegraded,
		EvTeardownRequested: model.StatusTeardownInProgress,
	},
	model.StatusTeardownInProgress: {
		EvTeardownCompleted: model.StatusTerminated,
		EvTeardownFailed:    model.StatusFailed,
	},
	model.StatusFailed: {
		EvTeardownRequested: model.StatusTeardownInProgress,
	},
	model.StatusTerminated: {},
}

// nextStatus returns the destination status for (current, event), or an
// FSM_REJECT error if the transition is not in the table.
func nextStatus(current model.ConnectionStatus, ev Event) (model.ConnectionStatus, error) {
	row, ok := transitions[current]
	if !ok {
		return "", coreerrors.New(coreerrors.FSMReject, "nextStatus")
	}
	next, ok := row[ev]
	if !ok {
		return "", coreerrors.New(coreerrors.FSMReject, "nextStatus")
	}
	return next, nil
}
