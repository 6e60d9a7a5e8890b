package client

import "errors"

// Client errors.
var (
	// ErrNoMessaging is returned when no Messaging instance is configured.
	ErrNoMessaging = errors.New("client: no messaging configured")

	// ErrNotConnected is returned by SendReceive before Connect.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyWaiting is returned when a request's token is already
	// awaiting a response.
	ErrAlreadyWaiting = errors.New("client: token already awaiting a response")

	// ErrTimeout is returned when no response arrived in time.
	ErrTimeout = errors.New("client: response timeout")

	// ErrAcknowledged is returned by WaitRecord.Wait when an empty ACK
	// arrives before the response.
	ErrAcknowledged = errors.New("client: request acknowledged, response pending")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")
)

// ErrReset is returned with the RST a peer sent instead of a response.
var ErrReset = errors.New("client: request reset by peer")
