package message

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/backkem/coap/pkg/stream"
)

// OptionNumber identifies an option (RFC 7252 Section 5.10).
type OptionNumber uint16

const (
	IfMatch             OptionNumber = 1
	URIHost             OptionNumber = 3
	ETag                OptionNumber = 4
	IfNoneMatch         OptionNumber = 5
	URIPort             OptionNumber = 7
	LocationPath        OptionNumber = 8
	URIPath             OptionNumber = 11
	ContentFormatOption OptionNumber = 12
	MaxAge              OptionNumber = 14
	URIQuery            OptionNumber = 15
	Accept              OptionNumber = 17
	LocationQuery       OptionNumber = 20
	ProxyURI            OptionNumber = 35
	ProxyScheme         OptionNumber = 39
	Size1               OptionNumber = 60
)

// IsCritical reports whether the number is critical (bit 0 set).
func (n OptionNumber) IsCritical() bool { return n&1 != 0 }

// IsUnsafe reports whether the number is unsafe to forward (bit 1 set).
func (n OptionNumber) IsUnsafe() bool { return n&2 != 0 }

// IsSafeToForward is the inverse of IsUnsafe.
func (n OptionNumber) IsSafeToForward() bool { return n&2 == 0 }

// IsNoCacheKey reports whether a safe-to-forward option is excluded from
// the cache key (bits 1-4 equal 0x1c).
func (n OptionNumber) IsNoCacheKey() bool { return n&0x1e == 0x1c }

// IsKnown reports whether the number is in the option table.
func (n OptionNumber) IsKnown() bool {
	_, ok := optionTable[n]
	return ok
}

// String returns the option name, "UNK(n)" for unknown numbers.
func (n OptionNumber) String() string {
	if def, ok := optionTable[n]; ok {
		return def.Name
	}
	return fmt.Sprintf("UNK(%d)", uint16(n))
}

// OptionFormat is the value format of an option.
type OptionFormat uint8

const (
	FormatEmpty OptionFormat = iota
	FormatOpaque
	FormatUint
	FormatString
)

// String returns the format name.
func (f OptionFormat) String() string {
	switch f {
	case FormatEmpty:
		return "empty"
	case FormatOpaque:
		return "opaque"
	case FormatUint:
		return "uint"
	case FormatString:
		return "string"
	default:
		return "unknown"
	}
}

// UnknownOptionID is the table id of the synthetic entry for unrecognized numbers.
const UnknownOptionID uint8 = 255

// OptionDef is the static metadata of an option number.
type OptionDef struct {
	ID         uint8
	Number     OptionNumber
	Critical   bool
	Unsafe     bool
	NoCacheKey bool
	Repeatable bool
	Name       string
	Format     OptionFormat
	MinLength  int
	MaxLength  int
	Default    uint32
}

// DefaultMaxAge is the Max-Age assumed when the option is absent.
const DefaultMaxAge = 60 * time.Second

var optionTable = map[OptionNumber]OptionDef{
	IfMatch:             {ID: 0, Number: IfMatch, Critical: true, Repeatable: true, Name: "If-Match", Format: FormatOpaque, MaxLength: 8},
	URIHost:             {ID: 1, Number: URIHost, Critical: true, Unsafe: true, Name: "Uri-Host", Format: FormatString, MinLength: 1, MaxLength: 255},
	ETag:                {ID: 2, Number: ETag, Repeatable: true, Name: "ETag", Format: FormatOpaque, MinLength: 1, MaxLength: 8},
	IfNoneMatch:         {ID: 3, Number: IfNoneMatch, Critical: true, Name: "If-None-Match", Format: FormatEmpty},
	URIPort:             {ID: 4, Number: URIPort, Critical: true, Unsafe: true, Name: "Uri-Port", Format: FormatUint, MaxLength: 2},
	LocationPath:        {ID: 5, Number: LocationPath, Repeatable: true, Name: "Location-Path", Format: FormatString, MaxLength: 255},
	URIPath:             {ID: 6, Number: URIPath, Critical: true, Unsafe: true, Repeatable: true, Name: "Uri-Path", Format: FormatString, MaxLength: 255},
	ContentFormatOption: {ID: 7, Number: ContentFormatOption, Name: "Content-Format", Format: FormatUint, MaxLength: 2},
	MaxAge:              {ID: 8, Number: MaxAge, Unsafe: true, Name: "Max-Age", Format: FormatUint, MaxLength: 4, Default: 60},
	URIQuery:            {ID: 9, Number: URIQuery, Critical: true, Unsafe: true, Repeatable: true, Name: "Uri-Query", Format: FormatString, MaxLength: 255},
	Accept:              {ID: 10, Number: Accept, Critical: true, Name: "Accept", Format: FormatUint, MaxLength: 2},
	LocationQuery:       {ID: 11, Number: LocationQuery, Repeatable: true, Name: "Location-Query", Format: FormatString, MaxLength: 255},
	ProxyURI:            {ID: 12, Number: ProxyURI, Critical: true, Unsafe: true, Name: "Proxy-Uri", Format: FormatString, MinLength: 1, MaxLength: 1034},
	ProxyScheme:         {ID: 13, Number: ProxyScheme, Critical: true, Unsafe: true, Name: "Proxy-Scheme", Format: FormatString, MinLength: 1, MaxLength: 255},
	Size1:               {ID: 14, Number: Size1, NoCacheKey: true, Name: "Size1", Format: FormatUint, MaxLength: 4},
}

// LookupOption returns the metadata for n. Unknown numbers get a synthetic
// entry whose flags are computed from the number itself.
func LookupOption(n OptionNumber) OptionDef {
	if def, ok := optionTable[n]; ok {
		return def
	}
	return OptionDef{
		ID:         UnknownOptionID,
		Number:     n,
		Critical:   n.IsCritical(),
		Unsafe:     n.IsUnsafe(),
		NoCacheKey: n.IsNoCacheKey(),
		Repeatable: true,
		Name:       "UNK",
		Format:     FormatOpaque,
		MaxLength:  1034,
	}
}

// Option is a single option: its number and raw wire value.
// Typed views are derived from the value according to the number's format.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// NewOpaqueOption creates an option with an opaque value.
func NewOpaqueOption(n OptionNumber, v []byte) Option {
	value := make([]byte, len(v))
	copy(value, v)
	return Option{Number: n, Value: value}
}

// NewStringOption creates an option with a UTF-8 value.
func NewStringOption(n OptionNumber, v string) Option {
	return Option{Number: n, Value: []byte(v)}
}

// NewUintOption creates an option with a minimal-length big-endian value.
func NewUintOption(n OptionNumber, v uint32) Option {
	size := stream.UintLen(v)
	s := stream.NewSized(size)
	_ = s.WriteUint(v, size)
	return Option{Number: n, Value: s.Bytes()}
}

// NewEmptyOption creates a zero-length option such as If-None-Match.
func NewEmptyOption(n OptionNumber) Option {
	return Option{Number: n, Value: []byte{}}
}

// Def returns the option's metadata.
func (o Option) Def() OptionDef { return LookupOption(o.Number) }

// Uint interprets the value as a big-endian unsigned integer. Values
// longer than 4 bytes keep their low-order 4 bytes.
func (o Option) Uint() uint32 {
	var v uint32
	for _, b := range o.Value {
		v = v<<8 | uint32(b)
	}
	return v
}

// StringValue interprets the value as UTF-8.
func (o Option) StringValue() string { return string(o.Value) }

// Typed returns the value as []byte, string, uint32 or nil (empty format).
func (o Option) Typed() any {
	switch o.Def().Format {
	case FormatEmpty:
		return nil
	case FormatUint:
		return o.Uint()
	case FormatString:
		return o.StringValue()
	default:
		return o.Value
	}
}

// Equal reports whether both number and value match.
func (o Option) Equal(other Option) bool {
	return o.Number == other.Number && bytes.Equal(o.Value, other.Value)
}

// Hash returns a stable 64-bit hash of number and value.
func (o Option) Hash() uint64 {
	h := fnv.New64a()
	var n [2]byte
	n[0] = byte(o.Number >> 8)
	n[1] = byte(o.Number)
	h.Write(n[:])
	h.Write(o.Value)
	return h.Sum64()
}

// Clone returns a deep copy.
func (o Option) Clone() Option {
	return NewOpaqueOption(o.Number, o.Value)
}

// String formats the option for logs.
func (o Option) String() string {
	switch v := o.Typed().(type) {
	case nil:
		return o.Number.String()
	case uint32:
		return fmt.Sprintf("%s=%d", o.Number, v)
	case string:
		return fmt.Sprintf("%s=%q", o.Number, v)
	default:
		return fmt.Sprintf("%s=%x", o.Number, o.Value)
	}
}

// encodedSize returns the bytes needed to encode o after an option with
// number prev.
func (o Option) encodedSize(prev OptionNumber) int {
	delta := int(o.Number - prev)
	return 1 + extensionSize(delta) + extensionSize(len(o.Value)) + len(o.Value)
}

func extensionSize(v int) int {
	switch {
	case v < extendOneByteBias:
		return 0
	case v < extendTwoBytesBias:
		return 1
	default:
		return 2
	}
}

// nibble returns the 4-bit field value for v and its extension value.
func nibble(v int) (uint8, int) {
	switch {
	case v < extendOneByteBias:
		return uint8(v), 0
	case v < extendTwoBytesBias:
		return nibbleOneByte, v - extendOneByteBias
	default:
		return nibbleTwoBytes, v - extendTwoBytesBias
	}
}

// writeTo encodes o after an option with number prev: one byte with the
// delta nibble high and the length nibble low, then the delta extension,
// the length extension and the value.
func (o Option) writeTo(s *stream.Stream, prev OptionNumber) error {
	if o.Number < prev {
		return ErrOptionOrder
	}
	if len(o.Value) > 0xFFFF+extendTwoBytesBias {
		return ErrOptionTooLong
	}
	deltaNibble, deltaExt := nibble(int(o.Number - prev))
	lengthNibble, lengthExt := nibble(len(o.Value))

	// s is a freshly allocated buffer, so the nibble byte starts zeroed.
	if err := s.UpdateByteNoAdvance(deltaNibble << 4); err != nil {
		return err
	}
	if err := s.UpdateByteNoAdvance(lengthNibble); err != nil {
		return err
	}
	if err := s.Advance(1); err != nil {
		return err
	}
	if err := writeExtension(s, deltaNibble, deltaExt); err != nil {
		return err
	}
	if err := writeExtension(s, lengthNibble, lengthExt); err != nil {
		return err
	}
	return s.WriteBytes(o.Value)
}

func writeExtension(s *stream.Stream, n uint8, ext int) error {
	switch n {
	case nibbleOneByte:
		return s.WriteByte(byte(ext))
	case nibbleTwoBytes:
		return s.WriteUint16(uint16(ext))
	}
	return nil
}

func readExtension(s *stream.Stream, n uint8) (int, error) {
	switch n {
	case nibbleOneByte:
		b, err := s.ReadByte()
		return int(b) + extendOneByteBias, err
	case nibbleTwoBytes:
		v, err := s.ReadUint16()
		return int(v) + extendTwoBytesBias, err
	case nibbleReserved:
		return 0, ErrInvalidOptionNibble
	}
	return int(n), nil
}

// readOption decodes one option whose first byte has already been read.
// prev is the number of the previous option; the returned option's number
// is prev + delta.
func readOption(s *stream.Stream, first byte, prev OptionNumber) (Option, error) {
	delta, err := readExtension(s, first>>4)
	if err != nil {
		return Option{}, wrapStreamErr(err)
	}
	length, err := readExtension(s, first&0x0F)
	if err != nil {
		return Option{}, wrapStreamErr(err)
	}
	number := int(prev) + delta
	if number > 0xFFFF {
		return Option{}, ErrOptionOrder
	}
	value, err := s.ReadBytes(length)
	if err != nil {
		return Option{}, wrapStreamErr(err)
	}
	return Option{Number: OptionNumber(number), Value: value}, nil
}

func wrapStreamErr(err error) error {
	if err == stream.ErrOutOfRange {
		return ErrMessageTooShort
	}
	return err
}
