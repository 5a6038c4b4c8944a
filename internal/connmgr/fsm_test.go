package connmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

func TestNextStatus_ValidTransitions(t *testing.T) {
	cases := []struct {
		from model.ConnectionStatus
		ev   Event
		want model.ConnectionStatus
	}{
		{model.StatusPending, EvSetupRequested, model.StatusSetupInProgress},
		{model.StatusSetupInProgress, EvSetupCompleted, model.StatusActive},
		{model.StatusActive, EvDegradationDetected, model.StatusDegraded},
		{model.StatusActive, EvReconfigRequested, model.StatusReconfiguring},
		{model.StatusDegraded, EvReconfigRequested, model.StatusReconfiguring},
		{model.StatusReconfiguring, EvReconfigCompleted, model.StatusActive},
		{model.StatusReconfiguring, EvReconfigFailed, model.StatusDegraded},
		{model.StatusActive, EvTeardownRequested, model.StatusTeardownInProgress},
		{model.StatusFailed, EvTeardownRequested, model.StatusTeardownInProgress},
		{model.StatusTeardownInProgress, EvTeardownCompleted, model.StatusTerminated},
	}
	for _, c := range cases {
		got, err := nextStatus(c.from, c.ev)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestNextStatus_RejectsUnlistedTransitions(t *testing.T) {
	_, err := nextStatus(model.StatusTerminated, EvTeardownRequested)
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.FSMReject))

	_, err = nextStatus(model.StatusPending, EvReconfigRequested)
	require.Error(t, err)
	require.True(t, coreerrors.Is(err, coreerrors.FSMReject))
}

func TestNextStatus_TerminatedIsTerminal(t *testing.T) {
	for _, ev := range []Event{EvSetupRequested, EvReconfigRequested, EvTeardownRequested, EvDegradationDetected} {
		_, err := nextStatus(model.StatusTerminated, ev)
		require.Error(t, err)
	}
}
