package discovery

import "errors"

var (
	ErrClosed             = errors.New("discovery: closed")
	ErrNotStarted         = errors.New("discovery: role not announced")
	ErrInvalidServiceType = errors.New("discovery: invalid service type")
	ErrInvalidName        = errors.New("discovery: name longer than 63 bytes or containing dots")
	ErrTXTTooLong         = errors.New("discovery: TXT string longer than 255 bytes")

	// ErrServiceNotFound means a browse completed without a matching
	// instance.
	ErrServiceNotFound = errors.New("discovery: service not found")
	ErrTimeout         = errors.New("discovery: lookup timed out")
)
