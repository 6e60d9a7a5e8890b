package message

import (
	"bytes"
	"fmt"

	"github.com/backkem/coap/pkg/stream"
)

// Message is a decoded CoAP message.
//
// A Message returned by Decode, Parser.Parse or Builder.Build must be treated
// as immutable: it may be shared between the dispatcher, exchange processors
// and the dedup table.
type Message struct {
	Header  Header
	Token   []byte
	Options Options
	Payload []byte

	// Flags and BadOption are filled in by Parser.Parse.
	Flags     OptionFlags
	BadOption *Option

	raw []byte
}

// Type returns the message type.
func (m *Message) Type() Type { return m.Header.Type }

// Code returns the message code.
func (m *Message) Code() Code { return m.Header.Code }

// MessageID returns the message ID.
func (m *Message) MessageID() uint16 { return m.Header.MessageID }

// Raw returns the encoded datagram, if the message was decoded or built.
func (m *Message) Raw() []byte { return m.raw }

// IsConfirmable reports a CON message.
func (m *Message) IsConfirmable() bool { return m.Header.Type == Confirmable }

// IsNonConfirmable reports a NON message.
func (m *Message) IsNonConfirmable() bool { return m.Header.Type == NonConfirmable }

// IsAck reports an ACK message.
func (m *Message) IsAck() bool { return m.Header.Type == Acknowledgement }

// IsReset reports a RST message.
func (m *Message) IsReset() bool { return m.Header.Type == Reset }

// IsEmpty reports code 0.00.
func (m *Message) IsEmpty() bool { return m.Header.Code == Empty }

// IsRequest reports a method code.
func (m *Message) IsRequest() bool { return m.Header.Code.IsRequest() }

// IsResponse reports a response code.
func (m *Message) IsResponse() bool { return m.Header.Code.IsResponse() }

// IsPing reports an empty confirmable message (CoAP ping).
func (m *Message) IsPing() bool { return m.IsConfirmable() && m.IsEmpty() }

// IsEmptyAck reports an ACK without a piggybacked response.
func (m *Message) IsEmptyAck() bool { return m.IsAck() && m.IsEmpty() }

// IsPiggybackedResponse reports an ACK carrying a response.
func (m *Message) IsPiggybackedResponse() bool { return m.IsAck() && m.IsResponse() }

// IsDelayedResponse reports a response sent in its own CON or NON message.
func (m *Message) IsDelayedResponse() bool {
	return (m.IsConfirmable() || m.IsNonConfirmable()) && m.IsResponse()
}

// IsGET reports a GET request.
func (m *Message) IsGET() bool { return m.Header.Code == GET }

// IsTagged reports the presence of an ETag option.
func (m *Message) IsTagged() bool { return m.Options.Has(ETag) }

// HasBadOptions reports options that must be answered with 4.02 or 4.06.
func (m *Message) HasBadOptions() bool {
	return m.Flags&(FlagBadOption|FlagNotAcceptable) != 0
}

// Size returns the encoded size in bytes.
func (m *Message) Size() int {
	size := HeaderSize + len(m.Token)
	var prev OptionNumber
	for _, opt := range m.Options.All() {
		size += opt.encodedSize(prev)
		prev = opt.Number
	}
	if len(m.Payload) > 0 {
		size += 1 + len(m.Payload)
	}
	return size
}

// Encode serializes the message. The token length field is taken from
// len(Token); option deltas are recomputed from the ordered list.
func (m *Message) Encode() ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, ErrInvalidTokenLength
	}
	h := m.Header
	h.TokenLength = uint8(len(m.Token))
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if h.Code == Empty && ((len(m.Token) > 0 && h.Type != Reset) || m.Options.Len() > 0 || len(m.Payload) > 0) {
		return nil, ErrEmptyWithContent
	}

	size := m.Size()
	if size > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	s := stream.NewSized(size)
	if err := s.WriteUint32(h.Pack()); err != nil {
		return nil, err
	}
	if err := s.WriteBytes(m.Token); err != nil {
		return nil, err
	}
	var prev OptionNumber
	for _, opt := range m.Options.All() {
		if err := opt.writeTo(s, prev); err != nil {
			return nil, err
		}
		prev = opt.Number
	}
	if len(m.Payload) > 0 {
		if err := s.WriteByte(PayloadMarker); err != nil {
			return nil, err
		}
		if err := s.WriteBytes(m.Payload); err != nil {
			return nil, err
		}
	}
	return s.Bytes(), nil
}

// Decode parses the structure of a datagram: header, token, options and
// payload. It does not classify options; see Parser.
//
// When the header decodes but a later part is malformed, the partially
// filled message is returned together with the error so callers can still
// answer by message ID and token.
func Decode(data []byte) (*Message, error) {
	m := &Message{raw: data}
	if _, err := m.Header.Decode(data); err != nil {
		return nil, err
	}

	s := stream.New(data)
	_ = s.Advance(HeaderSize)

	token, err := s.ReadBytes(int(m.Header.TokenLength))
	if err != nil {
		return m, ErrMessageTooShort
	}
	m.Token = token

	// A RST echoes the token of the message it rejects.
	if m.Header.Code == Empty && ((len(token) > 0 && m.Header.Type != Reset) || s.Remaining() > 0) {
		return m, ErrEmptyWithContent
	}

	var prev OptionNumber
	for s.Remaining() > 0 {
		first, _ := s.ReadByte()
		if first == PayloadMarker {
			if s.Remaining() == 0 {
				return m, ErrEmptyPayload
			}
			m.Payload, _ = s.ReadBytes(s.Remaining())
			break
		}
		if first>>4 == nibbleReserved || first&0x0F == nibbleReserved {
			return m, ErrInvalidOptionNibble
		}
		opt, err := readOption(s, first, prev)
		if err != nil {
			return m, err
		}
		// Deltas are non-negative, so wire order is already sorted.
		_ = m.Options.Append(opt)
		prev = opt.Number
	}
	return m, nil
}

// Equal compares header, token, options and payload.
func (m *Message) Equal(other *Message) bool {
	return m.Header == other.Header &&
		bytes.Equal(m.Token, other.Token) &&
		m.Options.Equal(&other.Options) &&
		bytes.Equal(m.Payload, other.Payload)
}

// String formats the message for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s mid=%d token=%x options=%s payload=%d bytes",
		m.Header.Type, m.Header.Code, m.Header.MessageID, m.Token, m.Options.String(), len(m.Payload))
}
