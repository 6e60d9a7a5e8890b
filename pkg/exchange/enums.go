// Package exchange implements the server side of CoAP message exchanges.
//
// Every request that reaches a Manager gets a Processor, a small state
// machine that decides how to answer it: piggybacked on the ACK when the
// resource provider can answer right away, or as a separate response after
// an empty ACK when it cannot. Separate confirmable responses are
// retransmitted with exponential backoff until the peer acknowledges them
// or MAX_RETRANSMIT is exhausted. Recently answered message IDs are kept
// for EXCHANGE_LIFETIME so duplicates get the same answer again.
//
// References:
//   - RFC 7252 Section 4: Message Transmission
//   - RFC 7252 Section 5.2: Responses
package exchange

// State is one step of a Processor.
type State int

const (
	// StateIdle is the state of a processor that has not started.
	StateIdle State = iota

	// StateMessageReceived classifies a new message and routes requests
	// to a provider.
	StateMessageReceived

	// StateDelayedProcessing acknowledges the request and runs the
	// provider on a worker.
	StateDelayedProcessing

	// StateImmediateResponseAvailable builds a piggybacked response (or an
	// immediate NON response).
	StateImmediateResponseAvailable

	// StateSendMessageAndTrackExchangeLifetime sends the response and
	// keeps it for duplicate replay.
	StateSendMessageAndTrackExchangeLifetime

	// StateDelayedResponseAvailable builds the separate response once the
	// provider finished.
	StateDelayedResponseAvailable

	// StateAwaitingAck waits for the ACK of a separate CON response.
	StateAwaitingAck

	// StateRetransmitDelayedResponse resends the separate response after
	// an ACK timeout.
	StateRetransmitDelayedResponse

	// StateAckReceived ends ACK tracking.
	StateAckReceived

	// StateResetReceived handles a RST from the peer.
	StateResetReceived

	// StateSendReset rejects a message with RST.
	StateSendReset

	// StateBadOptions answers a request carrying unrecognized critical
	// options or an unacceptable Accept.
	StateBadOptions

	// StateError handles malformed messages, provider failures and
	// unacknowledged responses.
	StateError

	// StateReplayResponse resends the stored answer to a duplicate.
	StateReplayResponse

	// StateArchive is terminal: the processor is removed from tracking.
	StateArchive
)

var stateNames = [...]string{
	StateIdle:                                "Idle",
	StateMessageReceived:                     "MessageReceived",
	StateDelayedProcessing:                   "DelayedProcessing",
	StateImmediateResponseAvailable:          "ImmediateResponseAvailable",
	StateSendMessageAndTrackExchangeLifetime: "SendMessageAndTrackExchangeLifetime",
	StateDelayedResponseAvailable:            "DelayedResponseAvailable",
	StateAwaitingAck:                         "AwaitingAck",
	StateRetransmitDelayedResponse:           "RetransmitDelayedResponse",
	StateAckReceived:                         "AckReceived",
	StateResetReceived:                       "ResetReceived",
	StateSendReset:                           "SendReset",
	StateBadOptions:                          "BadOptions",
	StateError:                               "Error",
	StateReplayResponse:                      "ReplayResponse",
	StateArchive:                             "Archive",
}

// String returns the state name.
func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return "Unknown"
}

// IsValid returns true if the state is a defined value.
func (s State) IsValid() bool {
	return s >= StateIdle && s <= StateArchive
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool { return s == StateArchive }

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle: {
		StateMessageReceived,
		StateBadOptions,
		StateError,
	},
	StateMessageReceived: {
		StateImmediateResponseAvailable,
		StateDelayedProcessing,
		StateResetReceived,
		StateSendReset,
		StateReplayResponse,
		StateError,
	},
	StateDelayedProcessing: {
		StateDelayedResponseAvailable,
		StateError,
		StateArchive,
	},
	StateImmediateResponseAvailable: {
		StateSendMessageAndTrackExchangeLifetime,
		StateArchive,
	},
	StateSendMessageAndTrackExchangeLifetime: {
		StateArchive,
	},
	StateDelayedResponseAvailable: {
		StateAwaitingAck,
		StateArchive,
	},
	StateAwaitingAck: {
		StateAckReceived,
		StateRetransmitDelayedResponse,
		StateResetReceived,
		StateError,
		StateArchive,
	},
	StateRetransmitDelayedResponse: {
		StateAwaitingAck,
	},
	StateAckReceived: {
		StateArchive,
	},
	StateResetReceived: {
		StateArchive,
	},
	StateSendReset: {
		StateArchive,
	},
	StateBadOptions: {
		StateImmediateResponseAvailable,
		StateSendReset,
	},
	StateError: {
		StateImmediateResponseAvailable,
		StateDelayedResponseAvailable,
		StateSendReset,
		StateArchive,
	},
	StateReplayResponse: {
		StateArchive,
	},
}

// CanTransition reports whether a processor may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
