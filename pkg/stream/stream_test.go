package stream

import (
	"bytes"
	"errors"
	"testing"
)

func TestStreamRoundTrip(t *testing.T) {
	s := NewSized(32)

	if err := s.WriteByte(0x41); err != nil {
		t.Fatalf("WriteByte failed: %v", err)
	}
	if err := s.WriteUint16(0xBEEF); err != nil {
		t.Fatalf("WriteUint16 failed: %v", err)
	}
	if err := s.WriteUint32(0xDEADBEEF); err != nil {
		t.Fatalf("WriteUint32 failed: %v", err)
	}
	if err := s.WriteBytes([]byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	if err := s.WriteLengthPrefixedString("hi"); err != nil {
		t.Fatalf("WriteLengthPrefixedString failed: %v", err)
	}

	want := []byte{0x41, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF, 1, 2, 3, 0x00, 0x02, 'h', 'i'}
	if !bytes.Equal(s.Written(), want) {
		t.Fatalf("written = %x, want %x", s.Written(), want)
	}

	r := New(s.Written())
	b, _ := r.ReadByte()
	u16, _ := r.ReadUint16()
	u32, _ := r.ReadUint32()
	raw, _ := r.ReadBytes(3)
	str, err := r.ReadLengthPrefixedString()
	if err != nil {
		t.Fatalf("ReadLengthPrefixedString failed: %v", err)
	}

	if b != 0x41 || u16 != 0xBEEF || u32 != 0xDEADBEEF || !bytes.Equal(raw, []byte{1, 2, 3}) || str != "hi" {
		t.Errorf("read back = %x %x %x %x %q", b, u16, u32, raw, str)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", r.Remaining())
	}
}

func TestStreamOutOfRange(t *testing.T) {
	// Each stream is one byte short of what the operation needs.
	tests := []struct {
		name string
		size int
		op   func(s *Stream) error
	}{
		{"ReadByte", 0, func(s *Stream) error { _, err := s.ReadByte(); return err }},
		{"WriteByte", 0, func(s *Stream) error { return s.WriteByte(1) }},
		{"UpdateByteNoAdvance", 0, func(s *Stream) error { return s.UpdateByteNoAdvance(1) }},
		{"ReadUint16", 1, func(s *Stream) error { _, err := s.ReadUint16(); return err }},
		{"ReadUint32", 3, func(s *Stream) error { _, err := s.ReadUint32(); return err }},
		{"ReadBytes", 1, func(s *Stream) error { _, err := s.ReadBytes(2); return err }},
		{"ReadString", 1, func(s *Stream) error { _, err := s.ReadString(2); return err }},
		{"WriteUint16", 1, func(s *Stream) error { return s.WriteUint16(1) }},
		{"WriteUint32", 3, func(s *Stream) error { return s.WriteUint32(1) }},
		{"WriteBytes", 1, func(s *Stream) error { return s.WriteBytes([]byte{1, 2}) }},
		{"Advance", 1, func(s *Stream) error { return s.Advance(2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSized(tt.size)
			if err := tt.op(s); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("error = %v, want ErrOutOfRange", err)
			}
			if s.Position() != 0 {
				t.Errorf("cursor moved to %d on failure", s.Position())
			}
		})
	}
}

func TestUpdateByteNoAdvance(t *testing.T) {
	s := NewSized(2)
	if err := s.UpdateByteNoAdvance(0xD0); err != nil {
		t.Fatalf("UpdateByteNoAdvance failed: %v", err)
	}
	if err := s.UpdateByteNoAdvance(0x05); err != nil {
		t.Fatalf("UpdateByteNoAdvance failed: %v", err)
	}
	if s.Position() != 0 {
		t.Fatalf("Position() = %d, want 0", s.Position())
	}
	if got := s.Bytes()[0]; got != 0xD5 {
		t.Errorf("byte = %#x, want 0xd5", got)
	}
}

func TestUint(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{}},
		{60, []byte{60}},
		{5683, []byte{0x16, 0x33}},
		{0x010203, []byte{1, 2, 3}},
		{0xFFFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		n := UintLen(tt.v)
		if n != len(tt.want) {
			t.Errorf("UintLen(%d) = %d, want %d", tt.v, n, len(tt.want))
			continue
		}
		s := NewSized(n)
		if err := s.WriteUint(tt.v, n); err != nil {
			t.Fatalf("WriteUint failed: %v", err)
		}
		if !bytes.Equal(s.Bytes(), tt.want) {
			t.Errorf("WriteUint(%d) = %x, want %x", tt.v, s.Bytes(), tt.want)
		}
		got, err := New(s.Bytes()).ReadUint(n)
		if err != nil || got != tt.v {
			t.Errorf("ReadUint = %d, %v; want %d", got, err, tt.v)
		}
	}
}
