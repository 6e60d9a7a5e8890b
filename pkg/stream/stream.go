// Package stream provides a bounds-checked, big-endian byte stream used by
// the CoAP wire codec.
//
// A Stream wraps a fixed buffer and a cursor. Reads and writes advance the
// cursor; every operation validates remaining capacity first and fails with
// ErrOutOfRange without touching the buffer when it would overrun.
package stream

import (
	"encoding/binary"
	"errors"
)

// ErrOutOfRange is returned when an operation would read or write past the
// end of the underlying buffer.
var ErrOutOfRange = errors.New("stream: out of range")

// Stream is a cursor over a fixed byte buffer.
// It is not safe for concurrent use.
type Stream struct {
	buf []byte
	pos int
}

// New wraps buf. Writes land in buf in place.
func New(buf []byte) *Stream {
	return &Stream{buf: buf}
}

// NewSized allocates a zeroed buffer of size bytes.
func NewSized(size int) *Stream {
	return &Stream{buf: make([]byte, size)}
}

// Position returns the cursor offset.
func (s *Stream) Position() int { return s.pos }

// Len returns the size of the underlying buffer.
func (s *Stream) Len() int { return len(s.buf) }

// Remaining returns the number of bytes between the cursor and the end.
func (s *Stream) Remaining() int { return len(s.buf) - s.pos }

// Bytes returns the underlying buffer.
func (s *Stream) Bytes() []byte { return s.buf }

// Written returns the buffer up to the cursor.
func (s *Stream) Written() []byte { return s.buf[:s.pos] }

func (s *Stream) check(n int) error {
	if n < 0 || s.pos+n > len(s.buf) {
		return ErrOutOfRange
	}
	return nil
}

// Advance moves the cursor forward by n bytes.
func (s *Stream) Advance(n int) error {
	if err := s.check(n); err != nil {
		return err
	}
	s.pos += n
	return nil
}

// Seek moves the cursor to an absolute offset.
func (s *Stream) Seek(pos int) error {
	if pos < 0 || pos > len(s.buf) {
		return ErrOutOfRange
	}
	s.pos = pos
	return nil
}

// PeekByte returns the byte at the cursor without advancing.
func (s *Stream) PeekByte() (byte, error) {
	if err := s.check(1); err != nil {
		return 0, err
	}
	return s.buf[s.pos], nil
}

// ReadByte reads one byte.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.check(1); err != nil {
		return 0, err
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// ReadUint16 reads a big-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	if err := s.check(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	if err := s.check(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(s.buf[s.pos:])
	s.pos += 4
	return v, nil
}

// ReadBytes returns a copy of the next n bytes.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if err := s.check(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s.buf[s.pos:s.pos+n])
	s.pos += n
	return out, nil
}

// ReadUint reads an n-byte big-endian unsigned integer (n <= 4).
// Zero-length values decode as 0.
func (s *Stream) ReadUint(n int) (uint32, error) {
	if n > 4 {
		return 0, ErrOutOfRange
	}
	if err := s.check(n); err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < n; i++ {
		v = v<<8 | uint32(s.buf[s.pos+i])
	}
	s.pos += n
	return v, nil
}

// ReadString reads n bytes as a UTF-8 string.
func (s *Stream) ReadString(n int) (string, error) {
	if err := s.check(n); err != nil {
		return "", err
	}
	str := string(s.buf[s.pos : s.pos+n])
	s.pos += n
	return str, nil
}

// ReadLengthPrefixedString reads a uint16 length followed by that many bytes.
func (s *Stream) ReadLengthPrefixedString() (string, error) {
	start := s.pos
	n, err := s.ReadUint16()
	if err != nil {
		return "", err
	}
	str, err := s.ReadString(int(n))
	if err != nil {
		s.pos = start
		return "", err
	}
	return str, nil
}

// WriteByte writes one byte.
func (s *Stream) WriteByte(b byte) error {
	if err := s.check(1); err != nil {
		return err
	}
	s.buf[s.pos] = b
	s.pos++
	return nil
}

// UpdateByteNoAdvance ORs b into the byte at the cursor and leaves the
// cursor in place. Used to pack two nibbles into one byte.
func (s *Stream) UpdateByteNoAdvance(b byte) error {
	if err := s.check(1); err != nil {
		return err
	}
	s.buf[s.pos] |= b
	return nil
}

// WriteUint16 writes a big-endian uint16.
func (s *Stream) WriteUint16(v uint16) error {
	if err := s.check(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(s.buf[s.pos:], v)
	s.pos += 2
	return nil
}

// WriteUint32 writes a big-endian uint32.
func (s *Stream) WriteUint32(v uint32) error {
	if err := s.check(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(s.buf[s.pos:], v)
	s.pos += 4
	return nil
}

// WriteUint writes v using exactly n big-endian bytes (n <= 4), truncating
// high-order bytes that do not fit.
func (s *Stream) WriteUint(v uint32, n int) error {
	if n > 4 {
		return ErrOutOfRange
	}
	if err := s.check(n); err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		s.buf[s.pos+i] = byte(v)
		v >>= 8
	}
	s.pos += n
	return nil
}

// WriteBytes writes b.
func (s *Stream) WriteBytes(b []byte) error {
	if err := s.check(len(b)); err != nil {
		return err
	}
	copy(s.buf[s.pos:], b)
	s.pos += len(b)
	return nil
}

// WriteString writes the UTF-8 bytes of str.
func (s *Stream) WriteString(str string) error {
	if err := s.check(len(str)); err != nil {
		return err
	}
	copy(s.buf[s.pos:], str)
	s.pos += len(str)
	return nil
}

// WriteLengthPrefixedString writes a uint16 length followed by str.
func (s *Stream) WriteLengthPrefixedString(str string) error {
	if len(str) > 0xFFFF {
		return ErrOutOfRange
	}
	if err := s.check(2 + len(str)); err != nil {
		return err
	}
	_ = s.WriteUint16(uint16(len(str)))
	return s.WriteString(str)
}

// UintLen returns the minimal number of bytes needed to encode v
// (0 for v == 0), as used by CoAP uint options.
func UintLen(v uint32) int {
	switch {
	case v == 0:
		return 0
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}
