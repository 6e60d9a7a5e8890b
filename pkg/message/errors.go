package message

import "errors"

// Message layer errors.
var (
	// ErrMalformed is returned for structural violations of the wire format.
	ErrMalformed = errors.New("message: malformed")

	// ErrOptionError is returned when a message parsed structurally but
	// carries options that must be answered with 4.02 or 4.06.
	ErrOptionError = errors.New("message: option error")

	// Header errors, all wrapping ErrMalformed.
	ErrMessageTooShort    = wrapMalformed("data too short")
	ErrInvalidVersion     = wrapMalformed("invalid version (must be 1)")
	ErrInvalidType        = wrapMalformed("invalid type")
	ErrInvalidTokenLength = wrapMalformed("token length exceeds 8")
	ErrInvalidClass       = wrapMalformed("reserved code class")
	ErrInvalidDetail      = wrapMalformed("reserved code detail")

	// Option errors, all wrapping ErrMalformed.
	ErrInvalidOptionNibble = wrapMalformed("reserved option nibble 15")
	ErrOptionOrder         = wrapMalformed("options out of order")
	ErrDuplicateOption     = wrapMalformed("non-repeatable option repeated")
	ErrOptionTooLong       = wrapMalformed("option value too long")
	ErrEmptyPayload        = wrapMalformed("payload marker without payload")
	ErrEmptyWithContent    = wrapMalformed("empty message with token, options or payload")

	// ErrMessageTooLarge is returned when an encoded message exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message: exceeds maximum size")
)

type malformedError struct {
	msg string
}

func (e *malformedError) Error() string { return "message: malformed: " + e.msg }

func (e *malformedError) Unwrap() error { return ErrMalformed }

func wrapMalformed(msg string) error {
	return &malformedError{msg: msg}
}

// Message format constants from RFC 7252.
const (
	// ProtocolVersion is the only defined CoAP version.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed header size in bytes.
	HeaderSize = 4

	// MaxTokenLength is the largest permitted token length.
	MaxTokenLength = 8

	// DefaultTokenLength is the token length used for new requests.
	DefaultTokenLength = 8

	// PayloadMarker separates options from the payload.
	PayloadMarker byte = 0xFF

	// MaxMessageSize bounds encoded datagrams (IPv6 minimum MTU).
	MaxMessageSize = 1280

	// DefaultUnique seeds the high nibble of message IDs and the first
	// token byte of a builder.
	DefaultUnique uint16 = 0xA000
)

// Option encoding nibble escapes (Section 3.1).
const (
	nibbleOneByte  = 13
	nibbleTwoBytes = 14
	nibbleReserved = 15

	extendOneByteBias  = 13
	extendTwoBytesBias = 269
)
