// Package message implements the CoAP message format defined in RFC 7252.
//
// The package provides:
//   - Header encoding/decoding and validation (Section 3)
//   - Option metadata, ordering and delta encoding (Section 3.1, 5.4, 5.10)
//   - Message encoding/decoding and a classifying parser
//   - A reusable Builder with message ID and token generation
//
// Wire layout:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Ver| T |  TKL  |      Code     |          Message ID           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Token (if any, TKL bytes) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Options (if any) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|1 1 1 1 1 1 1 1|    Payload (if any) ...
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
package message

// Type is the CoAP message type (T field).
type Type uint8

const (
	// Confirmable messages require an acknowledgement.
	Confirmable Type = 0

	// NonConfirmable messages do not require an acknowledgement.
	NonConfirmable Type = 1

	// Acknowledgement acknowledges a Confirmable message and may carry a
	// piggybacked response.
	Acknowledgement Type = 2

	// Reset indicates a message was received but could not be processed.
	Reset Type = 3
)

// String returns the short RFC name of the type.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the type is a defined value.
func (t Type) IsValid() bool {
	return t <= Reset
}

// ContentFormat is a registered Content-Format identifier (Section 12.3).
type ContentFormat uint16

const (
	TextPlain   ContentFormat = 0
	LinkFormat  ContentFormat = 40
	XML         ContentFormat = 41
	OctetStream ContentFormat = 42
	EXI         ContentFormat = 47
	JSON        ContentFormat = 50
)

// String returns the media type of the format.
func (f ContentFormat) String() string {
	switch f {
	case TextPlain:
		return "text/plain;charset=utf-8"
	case LinkFormat:
		return "application/link-format"
	case XML:
		return "application/xml"
	case OctetStream:
		return "application/octet-stream"
	case EXI:
		return "application/exi"
	case JSON:
		return "application/json"
	default:
		return "unknown"
	}
}

// OptionFlags records option conditions found while parsing a message.
type OptionFlags uint8

const (
	// FlagBadOption marks an unrecognized critical option.
	FlagBadOption OptionFlags = 1 << iota

	// FlagIgnoredOption marks an unrecognized elective option that was skipped.
	FlagIgnoredOption

	// FlagNotAcceptable marks an Accept option naming an unsupported format.
	FlagNotAcceptable
)

// Has reports whether all bits of f2 are set.
func (f OptionFlags) Has(f2 OptionFlags) bool {
	return f&f2 == f2
}

// ErrorKind classifies a protocol error attached to an exchange.
type ErrorKind int

const (
	// ErrorNone means no error.
	ErrorNone ErrorKind = iota

	// ErrorMalformed is a structural header, token or option violation.
	ErrorMalformed

	// ErrorOptionError is a recoverable option failure (4.02 or 4.06).
	ErrorOptionError

	// ErrorAckNotReceived means a delayed confirmable response exhausted
	// its retransmissions.
	ErrorAckNotReceived

	// ErrorProvider means a resource provider failed while executing.
	ErrorProvider
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "None"
	case ErrorMalformed:
		return "Malformed"
	case ErrorOptionError:
		return "OptionError"
	case ErrorAckNotReceived:
		return "AckNotReceived"
	case ErrorProvider:
		return "Provider"
	default:
		return "Unknown"
	}
}
