package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrNoRouter is returned when a Manager is created without a Router.
	ErrNoRouter = errors.New("exchange: no router configured")

	// ErrInvalidParameters is returned for unusable transmission parameters.
	ErrInvalidParameters = errors.New("exchange: invalid transmission parameters")

	// ErrAckNotReceived is reported when a separate CON response was not
	// acknowledged after MAX_RETRANSMIT retransmissions.
	ErrAckNotReceived = errors.New("exchange: ack not received")

	// ErrAlreadyTracked is returned when a message ID is already awaiting
	// an ACK from the same peer.
	ErrAlreadyTracked = errors.New("exchange: message already awaiting ack")

	// ErrInvalidTransition is returned for a transition the state table
	// does not allow.
	ErrInvalidTransition = errors.New("exchange: invalid state transition")

	// ErrManagerClosed is returned after Close.
	ErrManagerClosed = errors.New("exchange: manager closed")

	// ErrProviderPanic wraps a panic recovered from a resource provider.
	ErrProviderPanic = errors.New("exchange: provider panicked")
)
