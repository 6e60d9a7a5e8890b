package message

import (
	"encoding/binary"
)

// Header is the fixed 4-byte CoAP header (RFC 7252 Section 3).
type Header struct {
	// Version must be 1.
	Version uint8

	// Type is CON, NON, ACK or RST.
	Type Type

	// TokenLength is the number of token bytes following the header (0-8).
	TokenLength uint8

	// Code is the request method or response code.
	Code Code

	// MessageID detects duplicates and matches ACK/RST to CON/NON.
	MessageID uint16
}

// Bit layout of the header packed into a big-endian uint32.
const (
	headerVersionShift     = 30
	headerTypeShift        = 28
	headerTokenLengthShift = 24
	headerClassShift       = 21
	headerDetailShift      = 16

	headerVersionMask     uint32 = 0x3 << headerVersionShift
	headerTypeMask        uint32 = 0x3 << headerTypeShift
	headerTokenLengthMask uint32 = 0xF << headerTokenLengthShift
	headerClassMask       uint32 = 0x7 << headerClassShift
	headerDetailMask      uint32 = 0x1F << headerDetailShift
	headerCodeMask               = headerClassMask | headerDetailMask
	headerMessageIDMask   uint32 = 0xFFFF
)

// EncodeVersion places v in the version bits of a packed header.
func EncodeVersion(v uint8) uint32 {
	return uint32(v) << headerVersionShift & headerVersionMask
}

// DecodeVersion extracts the version bits of a packed header.
func DecodeVersion(w uint32) uint8 {
	return uint8((w & headerVersionMask) >> headerVersionShift)
}

// EncodeType places t in the type bits of a packed header.
func EncodeType(t Type) uint32 {
	return uint32(t) << headerTypeShift & headerTypeMask
}

// DecodeType extracts the type bits of a packed header.
func DecodeType(w uint32) Type {
	return Type((w & headerTypeMask) >> headerTypeShift)
}

// EncodeTokenLength places n in the TKL bits of a packed header.
func EncodeTokenLength(n uint8) uint32 {
	return uint32(n) << headerTokenLengthShift & headerTokenLengthMask
}

// DecodeTokenLength extracts the TKL bits of a packed header.
func DecodeTokenLength(w uint32) uint8 {
	return uint8((w & headerTokenLengthMask) >> headerTokenLengthShift)
}

// EncodeClass places c in the class bits of a packed header.
func EncodeClass(c Class) uint32 {
	return uint32(c) << headerClassShift & headerClassMask
}

// DecodeClass extracts the class bits of a packed header.
func DecodeClass(w uint32) Class {
	return Class((w & headerClassMask) >> headerClassShift)
}

// EncodeDetail places d in the detail bits of a packed header.
func EncodeDetail(d uint8) uint32 {
	return uint32(d) << headerDetailShift & headerDetailMask
}

// DecodeDetail extracts the detail bits of a packed header.
func DecodeDetail(w uint32) uint8 {
	return uint8((w & headerDetailMask) >> headerDetailShift)
}

// EncodeCode places the full code byte in a packed header.
func EncodeCode(c Code) uint32 {
	return EncodeClass(c.Class()) | EncodeDetail(c.Detail())
}

// DecodeCode extracts the full code byte of a packed header.
func DecodeCode(w uint32) Code {
	return NewCode(DecodeClass(w), DecodeDetail(w))
}

// EncodeMessageID places id in the low 16 bits of a packed header.
func EncodeMessageID(id uint16) uint32 {
	return uint32(id)
}

// DecodeMessageID extracts the message ID of a packed header.
func DecodeMessageID(w uint32) uint16 {
	return uint16(w & headerMessageIDMask)
}

// Pack returns the header as a big-endian word.
func (h *Header) Pack() uint32 {
	return EncodeVersion(h.Version) |
		EncodeType(h.Type) |
		EncodeTokenLength(h.TokenLength) |
		EncodeCode(h.Code) |
		EncodeMessageID(h.MessageID)
}

// UnpackHeader splits a packed word into its fields without validation.
func UnpackHeader(w uint32) Header {
	return Header{
		Version:     DecodeVersion(w),
		Type:        DecodeType(w),
		TokenLength: DecodeTokenLength(w),
		Code:        DecodeCode(w),
		MessageID:   DecodeMessageID(w),
	}
}

// Encode serializes the header to a new 4-byte slice.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the header into buf, which must be at least
// HeaderSize bytes. Returns the number of bytes written.
func (h *Header) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint32(buf, h.Pack())
	return HeaderSize
}

// Decode deserializes and validates a header.
// Returns the number of bytes consumed from data.
func (h *Header) Decode(data []byte) (int, error) {
	if len(data) < HeaderSize {
		return 0, ErrMessageTooShort
	}
	*h = UnpackHeader(binary.BigEndian.Uint32(data))
	if err := h.Validate(); err != nil {
		return 0, err
	}
	return HeaderSize, nil
}

// Validate checks the header against RFC 7252 constraints.
func (h *Header) Validate() error {
	if h.Version != ProtocolVersion {
		return ErrInvalidVersion
	}
	if !h.Type.IsValid() {
		return ErrInvalidType
	}
	if h.TokenLength > MaxTokenLength {
		return ErrInvalidTokenLength
	}
	if !h.Code.Class().IsValid() {
		return ErrInvalidClass
	}
	if h.Code.Detail() >= MaxDetail {
		return ErrInvalidDetail
	}
	return nil
}
