package server

import "errors"

// Server errors.
var (
	// ErrNoChannelFactory is returned when neither a channel factory nor a
	// messaging instance is configured.
	ErrNoChannelFactory = errors.New("server: no channel factory configured")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("server: stopped")

	// ErrNoOrigin is returned when a proxy provider has no origin URI.
	ErrNoOrigin = errors.New("server: no origin URI")
)
