package messaging

import "errors"

// Messaging errors.
var (
	// ErrNotRunning is returned when sending on a stopped instance.
	ErrNotRunning = errors.New("messaging: not running")

	// ErrAlreadyRunning is returned by Start on a running instance.
	ErrAlreadyRunning = errors.New("messaging: already running")

	// ErrNoChannelFactory is returned when no channel factory is configured.
	ErrNoChannelFactory = errors.New("messaging: no channel factory configured")
)
