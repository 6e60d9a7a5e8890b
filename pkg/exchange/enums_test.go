package exchange

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateMessageReceived, "MessageReceived"},
		{StateSendMessageAndTrackExchangeLifetime, "SendMessageAndTrackExchangeLifetime"},
		{StateArchive, "Archive"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateMessageReceived, true},
		{StateIdle, StateBadOptions, true},
		{StateIdle, StateArchive, false},
		{StateMessageReceived, StateImmediateResponseAvailable, true},
		{StateMessageReceived, StateDelayedProcessing, true},
		{StateMessageReceived, StateAwaitingAck, false},
		{StateDelayedProcessing, StateDelayedResponseAvailable, true},
		{StateImmediateResponseAvailable, StateSendMessageAndTrackExchangeLifetime, true},
		{StateDelayedResponseAvailable, StateAwaitingAck, true},
		{StateDelayedResponseAvailable, StateArchive, true},
		{StateAwaitingAck, StateRetransmitDelayedResponse, true},
		{StateAwaitingAck, StateAckReceived, true},
		{StateRetransmitDelayedResponse, StateAwaitingAck, true},
		{StateRetransmitDelayedResponse, StateArchive, false},
		{StateBadOptions, StateImmediateResponseAvailable, true},
		{StateBadOptions, StateSendReset, true},
		{StateError, StateImmediateResponseAvailable, true},
		{StateError, StateArchive, true},
		{StateArchive, StateMessageReceived, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionTableCoversAllStates(t *testing.T) {
	for s := StateIdle; s <= StateArchive; s++ {
		if s.IsTerminal() {
			if len(transitions[s]) != 0 {
				t.Errorf("terminal state %s has transitions", s)
			}
			continue
		}
		if len(transitions[s]) == 0 {
			t.Errorf("state %s has no transitions", s)
		}
		for _, to := range transitions[s] {
			if !to.IsValid() || to == StateIdle {
				t.Errorf("state %s transitions to %s", s, to)
			}
		}
	}
}
