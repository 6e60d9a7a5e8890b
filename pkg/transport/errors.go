package transport

import "errors"

var (
	ErrClosed          = errors.New("transport: channel stopped")
	ErrAlreadyStarted  = errors.New("transport: channel already running")
	ErrNoHandler       = errors.New("transport: nil message handler")
	ErrInvalidAddress  = errors.New("transport: nil destination")
	ErrMessageTooLarge = errors.New("transport: datagram exceeds MaxDatagramSize")

	// ErrUnknownChannel is returned by Retire for a channel the factory
	// did not create.
	ErrUnknownChannel = errors.New("transport: channel not created by this factory")
)
