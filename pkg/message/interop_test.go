package message

import (
	"bytes"
	"context"
	"testing"

	gomessage "github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp/coder"
)

// The go-coap codec is an independent encoder used to cross-check the wire
// format in both directions.

func TestDecodeGoCoapMessage(t *testing.T) {
	ctx := context.Background()
	msg := pool.NewMessage(ctx)
	defer msg.Reset()

	msg.SetCode(codes.GET)
	msg.SetMessageID(4321)
	msg.SetType(gomessage.Confirmable)
	msg.SetToken(gomessage.Token{0xA0, 0x01, 0x02})
	if err := msg.SetPath("/sensors/temperature"); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}

	data, err := msg.MarshalWithEncoder(coder.DefaultCoder)
	if err != nil {
		t.Fatalf("Failed to marshal CoAP message: %v", err)
	}

	m, err := NewParser(ParserConfig{}).Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Code() != GET || m.Type() != Confirmable || m.MessageID() != 4321 {
		t.Errorf("header = %+v", m.Header)
	}
	if !bytes.Equal(m.Token, []byte{0xA0, 0x01, 0x02}) {
		t.Errorf("Token = %x", m.Token)
	}
	if got := m.Options.Path(); got != "sensors/temperature" {
		t.Errorf("Path() = %q", got)
	}
}

func TestGoCoapDecodesBuiltMessage(t *testing.T) {
	b := NewBuilder(NewIDGeneratorWithValue(0xA042), NewTokenSource(DefaultUnique, 4))
	m, err := b.CreateRequest(NonConfirmable, POST).
		WithPath("actuators/led").
		WithQuery("state=on").
		WithContentFormat(TextPlain).
		WithStringPayload("1").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ctx := context.Background()
	msg := pool.NewMessage(ctx)
	defer msg.Reset()

	if _, err := msg.UnmarshalWithDecoder(coder.DefaultCoder, m.Raw()); err != nil {
		t.Fatalf("failed to unmarshal CoAP message: %v", err)
	}
	if msg.Code() != codes.POST {
		t.Errorf("Code() = %v", msg.Code())
	}
	if msg.Type() != gomessage.NonConfirmable {
		t.Errorf("Type() = %v", msg.Type())
	}
	if msg.MessageID() != 0xA042 {
		t.Errorf("MessageID() = %#x", msg.MessageID())
	}
	if !bytes.Equal(msg.Token(), m.Token) {
		t.Errorf("Token() = %x, want %x", msg.Token(), m.Token)
	}
	path, err := msg.Options().Path()
	if err != nil || path != "/actuators/led" {
		t.Errorf("Path() = %q, %v", path, err)
	}
	queries, err := msg.Options().Queries()
	if err != nil || len(queries) != 1 || queries[0] != "state=on" {
		t.Errorf("Queries() = %v, %v", queries, err)
	}
}
