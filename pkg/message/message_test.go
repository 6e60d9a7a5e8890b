package message

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMessageEncodeKnownBytes(t *testing.T) {
	m := &Message{
		Header: Header{Version: 1, Type: Confirmable, Code: GET, MessageID: 0x7d34},
	}
	if err := m.Options.InsertInOrder(NewStringOption(URIPath, "temperature")); err != nil {
		t.Fatalf("InsertInOrder failed: %v", err)
	}

	got, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := append([]byte{0x40, 0x01, 0x7d, 0x34, 0xbb}, "temperature"...)
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	long := strings.Repeat("x", 300)

	tests := []struct {
		name    string
		header  Header
		token   []byte
		options []Option
		payload []byte
	}{
		{
			name:   "ping",
			header: Header{Type: Confirmable, Code: Empty, MessageID: 1},
		},
		{
			name:    "GET with path and query",
			header:  Header{Type: Confirmable, Code: GET, MessageID: 2},
			token:   []byte{0xA0, 1, 2, 3},
			options: []Option{NewStringOption(URIPath, "a"), NewStringOption(URIPath, "a"), NewStringOption(URIQuery, "k=v")},
		},
		{
			name:    "piggybacked content",
			header:  Header{Type: Acknowledgement, Code: Content, MessageID: 3},
			token:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
			options: []Option{NewOpaqueOption(ETag, []byte{9, 9}), NewUintOption(ContentFormatOption, 0), NewUintOption(MaxAge, 30)},
			payload: []byte("22.5 C"),
		},
		{
			name:    "one-byte extensions",
			header:  Header{Type: NonConfirmable, Code: POST, MessageID: 4},
			token:   []byte{7},
			options: []Option{NewStringOption(URIPath, strings.Repeat("p", 13)), NewStringOption(ProxyURI, "coap://h/x")},
		},
		{
			name:    "two-byte extensions",
			header:  Header{Type: Confirmable, Code: PUT, MessageID: 5},
			options: []Option{NewStringOption(URIPath, long), NewOpaqueOption(OptionNumber(2000), []byte{1})},
			payload: []byte{0},
		},
		{
			name:    "unknown elective option",
			header:  Header{Type: NonConfirmable, Code: Changed, MessageID: 6},
			options: []Option{NewOpaqueOption(OptionNumber(40), nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{Header: tt.header, Token: tt.token, Payload: tt.payload}
			m.Header.Version = 1
			m.Header.TokenLength = uint8(len(tt.token))
			for _, opt := range tt.options {
				if err := m.Options.InsertInOrder(opt); err != nil {
					t.Fatalf("InsertInOrder failed: %v", err)
				}
			}

			data, err := m.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(data) != m.Size() {
				t.Errorf("len(Encode()) = %d, Size() = %d", len(data), m.Size())
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !decoded.Equal(m) {
				t.Errorf("Decode(Encode(m)) = %s, want %s", decoded, m)
			}
			if !bytes.Equal(decoded.Raw(), data) {
				t.Error("Raw() does not return the decoded datagram")
			}
		})
	}
}

func TestOptionDeltaBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		prev  OptionNumber
		opt   Option
		first byte
		size  int
	}{
		{"delta 12 len 0", 0, NewOpaqueOption(12, nil), 0xC0, 1},
		{"delta 13 len 12", 0, NewOpaqueOption(13, make([]byte, 12)), 0xDC, 2 + 12},
		{"delta 268 len 13", 0, NewOpaqueOption(268, make([]byte, 13)), 0xDD, 3 + 13},
		{"delta 269 len 268", 0, NewOpaqueOption(269, make([]byte, 268)), 0xED, 4 + 268},
		{"delta 0 len 269", 11, NewOpaqueOption(11, make([]byte, 269)), 0x0E, 3 + 269},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opt.encodedSize(tt.prev); got != tt.size {
				t.Fatalf("encodedSize() = %d, want %d", got, tt.size)
			}
			m := &Message{Header: Header{Version: 1, Type: NonConfirmable, Code: POST}}
			if tt.prev != 0 {
				if err := m.Options.Append(NewOpaqueOption(tt.prev, nil)); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			if err := m.Options.Append(tt.opt); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			data, err := m.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			offset := HeaderSize
			if tt.prev != 0 {
				offset++
			}
			if data[offset] != tt.first {
				t.Errorf("first option byte = %#x, want %#x", data[offset], tt.first)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			all := decoded.Options.GetAll(tt.opt.Number)
			if len(all) == 0 || len(all[len(all)-1].Value) != len(tt.opt.Value) {
				t.Errorf("decoded option %d missing or wrong length", tt.opt.Number)
			}
		})
	}
}

func TestEncodeIsRepeatable(t *testing.T) {
	opts, err := NewOptions(
		NewStringOption(URIPath, "a"),
		NewOpaqueOption(ETag, []byte{1, 2}),
		NewOpaqueOption(300, []byte{7}),
		NewOpaqueOption(30, make([]byte, 20)),
		NewStringOption(URIPath, "b"),
		NewOpaqueOption(600, make([]byte, 300)),
	)
	if err != nil {
		t.Fatalf("NewOptions failed: %v", err)
	}
	m := &Message{
		Header:  Header{Version: 1, Type: Confirmable, Code: PUT, MessageID: 0x1234},
		Token:   []byte{0xCA, 0xFE},
		Options: opts,
		Payload: []byte("body"),
	}

	first, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, err := m.Encode()
	if err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("second Encode() = %x, want %x", second, first)
	}

	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	again, err := decoded.Encode()
	if err != nil {
		t.Fatalf("Encode of decoded message failed: %v", err)
	}
	if !bytes.Equal(first, again) {
		t.Errorf("re-encoded = %x, want %x", again, first)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		want        error
		wantPartial bool
	}{
		{"short header", []byte{0x40}, ErrMessageTooShort, false},
		{"truncated token", []byte{0x44, 0x01, 0x00, 0x01, 0xAA}, ErrMessageTooShort, true},
		{"marker without payload", []byte{0x40, 0x01, 0x00, 0x01, 0xFF}, ErrEmptyPayload, true},
		{"delta nibble 15", []byte{0x40, 0x01, 0x00, 0x01, 0xF1, 0x00}, ErrInvalidOptionNibble, true},
		{"length nibble 15", []byte{0x40, 0x01, 0x00, 0x01, 0xBF}, ErrInvalidOptionNibble, true},
		{"truncated option value", []byte{0x40, 0x01, 0x00, 0x01, 0xB5, 'a'}, ErrMessageTooShort, true},
		{"truncated extension", []byte{0x40, 0x01, 0x00, 0x01, 0xD0}, ErrMessageTooShort, true},
		{"empty with token", []byte{0x41, 0x00, 0x00, 0x01, 0x01}, ErrEmptyWithContent, true},
		{"empty with payload", []byte{0x40, 0x00, 0x00, 0x01, 0xFF, 0x01}, ErrEmptyWithContent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			if !IsMalformed(err) {
				t.Errorf("IsMalformed(%v) = false", err)
			}
			if tt.wantPartial && m == nil {
				t.Error("Decode() returned nil message for a valid header")
			}
			if !tt.wantPartial && m != nil {
				t.Error("Decode() returned a message for an invalid header")
			}
		})
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want error
	}{
		{
			name: "token too long",
			msg:  &Message{Header: Header{Version: 1, Code: GET}, Token: make([]byte, 9)},
			want: ErrInvalidTokenLength,
		},
		{
			name: "empty with payload",
			msg:  &Message{Header: Header{Version: 1, Code: Empty}, Payload: []byte{1}},
			want: ErrEmptyWithContent,
		},
		{
			name: "empty ACK with token",
			msg:  &Message{Header: Header{Version: 1, Type: Acknowledgement, Code: Empty}, Token: []byte{1}},
			want: ErrEmptyWithContent,
		},
		{
			name: "reset with payload",
			msg:  &Message{Header: Header{Version: 1, Type: Reset, Code: Empty}, Token: []byte{1}, Payload: []byte{1}},
			want: ErrEmptyWithContent,
		},
		{
			name: "too large",
			msg:  &Message{Header: Header{Version: 1, Code: POST}, Payload: make([]byte, MaxMessageSize)},
			want: ErrMessageTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.Encode(); !errors.Is(err, tt.want) {
				t.Errorf("Encode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResetCarriesToken(t *testing.T) {
	rst := &Message{Header: Header{Version: 1, Type: Reset, Code: Empty, MessageID: 9}, Token: []byte{0xAB, 0xCD}}
	data, err := rst.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if want := []byte{0x72, 0x00, 0x00, 0x09, 0xAB, 0xCD}; !bytes.Equal(data, want) {
		t.Fatalf("Encode() = %x, want %x", data, want)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.IsReset() || !bytes.Equal(got.Token, rst.Token) || got.MessageID() != 9 {
		t.Errorf("Decode() = %s", got)
	}
}

func TestMessagePredicates(t *testing.T) {
	ping := &Message{Header: Header{Type: Confirmable, Code: Empty}}
	emptyAck := &Message{Header: Header{Type: Acknowledgement, Code: Empty}}
	piggy := &Message{Header: Header{Type: Acknowledgement, Code: Content}}
	delayed := &Message{Header: Header{Type: Confirmable, Code: Content}}
	get := &Message{Header: Header{Type: NonConfirmable, Code: GET}}

	if !ping.IsPing() || ping.IsRequest() {
		t.Error("ping classification wrong")
	}
	if !emptyAck.IsEmptyAck() || emptyAck.IsPiggybackedResponse() {
		t.Error("empty ACK classification wrong")
	}
	if !piggy.IsPiggybackedResponse() || piggy.IsDelayedResponse() {
		t.Error("piggybacked response classification wrong")
	}
	if !delayed.IsDelayedResponse() || delayed.IsPiggybackedResponse() {
		t.Error("delayed response classification wrong")
	}
	if !get.IsRequest() || !get.IsGET() || get.IsResponse() {
		t.Error("GET classification wrong")
	}
}
