package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/transport"
)

const testTimeout = 2 * time.Second

func echo(immediate bool) *resource.Base {
	return &resource.Base{
		Immediate: immediate,
		Get: func(_ context.Context, req *message.Message, resp *resource.Response) (message.Code, error) {
			resp.Payload = []byte(req.Options.Path())
			return message.Content, nil
		},
	}
}

type serverFixture struct {
	client   *Client
	builder  *message.Builder
	registry *resource.Registry
	manager  *exchange.Manager
}

// newServerFixture connects a client to an exchange manager over a pipe.
func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	clientSide, serverSide := transport.NewPipeFactoryPair()

	registry := resource.NewRegistry()
	manager, err := exchange.NewManager(exchange.ManagerConfig{Router: registry, Params: exchange.TestParams()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	srv, err := messaging.New(messaging.Config{ChannelFactory: serverSide})
	if err != nil {
		t.Fatalf("messaging.New() error = %v", err)
	}
	srv.Register(manager)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cm, err := messaging.New(messaging.Config{ChannelFactory: clientSide})
	if err != nil {
		t.Fatalf("messaging.New() error = %v", err)
	}
	c, err := New(Config{Messaging: cm, Params: exchange.TestParams()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := c.Connect(clientSide.PeerAddr(), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	t.Cleanup(func() {
		_ = c.Close()
		_ = srv.Stop()
		_ = manager.Close()
		_ = clientSide.Pipe().Close()
	})
	return &serverFixture{client: c, builder: b, registry: registry, manager: manager}
}

func (f *serverFixture) get(t *testing.T, typ message.Type, path string) (*message.Message, *message.Message, error) {
	t.Helper()
	req, err := f.builder.Reset().CreateRequest(typ, message.GET).WithPath(path).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	resp, err := f.client.SendReceive(ctx, req)
	return req, resp, err
}

func TestSendReceiveImmediate(t *testing.T) {
	f := newServerFixture(t)
	f.registry.Add("echo/hi", echo(true))

	req, resp, err := f.get(t, message.Confirmable, "echo/hi")
	if err != nil {
		t.Fatalf("SendReceive() error = %v", err)
	}
	if !resp.IsPiggybackedResponse() || resp.Code() != message.Content {
		t.Errorf("response = %s, want piggybacked 2.05", resp)
	}
	if resp.MessageID() != req.MessageID() || string(resp.Token) != string(req.Token) {
		t.Errorf("response id/token = %d/%x, want %d/%x", resp.MessageID(), resp.Token, req.MessageID(), req.Token)
	}
	if string(resp.Payload) != "echo/hi" {
		t.Errorf("payload = %q", resp.Payload)
	}

	s := f.client.Stats().Snapshot()
	if s.RequestsSent != 1 || s.ImmediateResponsesReceived != 1 || s.RequestsRetransmissions != 0 {
		t.Errorf("stats = %+v", s)
	}
	if f.client.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d", f.client.Outstanding())
	}
}

func TestSendReceiveDelayed(t *testing.T) {
	f := newServerFixture(t)
	f.registry.Add("slow", echo(false))

	req, resp, err := f.get(t, message.Confirmable, "slow")
	if err != nil {
		t.Fatalf("SendReceive() error = %v", err)
	}
	if !resp.IsConfirmable() || resp.Code() != message.Content {
		t.Errorf("response = %s, want CON 2.05", resp)
	}
	if resp.MessageID() == req.MessageID() || string(resp.Token) != string(req.Token) {
		t.Errorf("response id/token = %d/%x", resp.MessageID(), resp.Token)
	}

	s := f.client.Stats().Snapshot()
	if s.AcksReceived != 1 || s.DelayedResponsesReceived != 1 || s.AcksSent != 1 {
		t.Errorf("stats = %+v", s)
	}

	// The server stops retransmitting once our ACK arrives.
	deadline := time.Now().Add(testTimeout)
	for f.manager.PendingAcks() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("server still awaiting ACK")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if got := f.manager.Stats().AcksReceived.Load(); got != 1 {
		t.Errorf("server AcksReceived = %d", got)
	}
}

func TestSendReceiveNonConfirmable(t *testing.T) {
	f := newServerFixture(t)
	f.registry.Add("echo", echo(true))

	req, resp, err := f.get(t, message.NonConfirmable, "echo")
	if err != nil {
		t.Fatalf("SendReceive() error = %v", err)
	}
	if !resp.IsNonConfirmable() || string(resp.Token) != string(req.Token) {
		t.Errorf("response = %s", resp)
	}
	if f.client.Stats().AcksSent.Load() != 0 {
		t.Error("client acknowledged a NON response")
	}
}

func TestSendReceiveNotConnected(t *testing.T) {
	clientSide, _ := transport.NewPipeFactoryPair()
	defer clientSide.Pipe().Close()
	cm, _ := messaging.New(messaging.Config{ChannelFactory: clientSide})
	c, err := New(Config{Messaging: cm})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	req := build(t, testBuilder().CreateRequest(message.Confirmable, message.GET))
	if _, err := c.SendReceive(context.Background(), req); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendReceive() error = %v, want ErrNotConnected", err)
	}
	if _, err := New(Config{}); !errors.Is(err, ErrNoMessaging) {
		t.Errorf("New(empty) error = %v", err)
	}
}

type rawFixture struct {
	client   *Client
	builder  *message.Builder
	peer     net.PacketConn
	clientAt net.Addr
	received chan *message.Message
}

// newRawFixture connects a client to a hand-driven datagram peer.
func newRawFixture(t *testing.T, params exchange.TransmissionParameters, resetUntracked bool) *rawFixture {
	t.Helper()
	clientSide, peerSide := transport.NewPipeFactoryPair()

	cm, err := messaging.New(messaging.Config{ChannelFactory: clientSide})
	if err != nil {
		t.Fatalf("messaging.New() error = %v", err)
	}
	c, err := New(Config{Messaging: cm, Params: params, ResetUntracked: resetUntracked})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := c.Connect(clientSide.PeerAddr(), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	f := &rawFixture{
		client:   c,
		builder:  b,
		peer:     peerSide.PacketConn(),
		clientAt: peerSide.PeerAddr(),
		received: make(chan *message.Message, 16),
	}
	done := make(chan struct{})
	go func() {
		buf := make([]byte, transport.MaxDatagramSize)
		for {
			n, _, err := f.peer.ReadFrom(buf)
			if err != nil {
				return
			}
			msg, err := message.Decode(append([]byte(nil), buf[:n]...))
			if err != nil {
				continue
			}
			select {
			case f.received <- msg:
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		_ = c.Close()
		_ = clientSide.Pipe().Close()
	})
	return f
}

func (f *rawFixture) send(t *testing.T, msg *message.Message) {
	t.Helper()
	if _, err := f.peer.WriteTo(msg.Raw(), f.clientAt); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
}

func (f *rawFixture) receive(t *testing.T) *message.Message {
	t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for client message")
		return nil
	}
}

type result struct {
	resp *message.Message
	err  error
}

func (f *rawFixture) sendReceiveAsync(req *message.Message) <-chan result {
	out := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		resp, err := f.client.SendReceive(ctx, req)
		out <- result{resp, err}
	}()
	return out
}

func TestRetransmitUntilTimeout(t *testing.T) {
	params := exchange.TestParams()
	params.MaxRetransmit = 2
	f := newRawFixture(t, params, false)

	req := build(t, f.builder.Reset().CreateRequest(message.Confirmable, message.GET).WithPath("void"))
	done := f.sendReceiveAsync(req)

	for i := 0; i <= params.MaxRetransmit; i++ {
		got := f.receive(t)
		if got.MessageID() != req.MessageID() {
			t.Errorf("transmission %d id = %d, want %d", i, got.MessageID(), req.MessageID())
		}
	}

	r := <-done
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("SendReceive() error = %v, want ErrTimeout", r.err)
	}
	if got := f.client.Stats().RequestsRetransmissions.Load(); got != uint64(params.MaxRetransmit) {
		t.Errorf("RequestsRetransmissions = %d, want %d", got, params.MaxRetransmit)
	}
	select {
	case extra := <-f.received:
		t.Errorf("unexpected transmission %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRetransmitThenResponse(t *testing.T) {
	f := newRawFixture(t, exchange.TestParams(), false)

	req := build(t, f.builder.Reset().CreateRequest(message.Confirmable, message.GET).WithPath("late"))
	done := f.sendReceiveAsync(req)

	f.receive(t)
	again := f.receive(t)
	if again.MessageID() != req.MessageID() {
		t.Fatalf("retransmission id = %d", again.MessageID())
	}
	f.send(t, build(t, testBuilder().CreatePiggybackedResponse(req, message.Content).WithStringPayload("ok")))

	r := <-done
	if r.err != nil || string(r.resp.Payload) != "ok" {
		t.Fatalf("SendReceive() = %v, %v", r.resp, r.err)
	}
}

func TestResetFromPeer(t *testing.T) {
	f := newRawFixture(t, exchange.TestParams(), false)

	req := build(t, f.builder.Reset().CreateRequest(message.Confirmable, message.GET))
	done := f.sendReceiveAsync(req)
	f.receive(t)
	f.send(t, build(t, testBuilder().CreateResetResponse(req)))

	r := <-done
	if !errors.Is(r.err, ErrReset) || r.resp == nil || !r.resp.IsReset() {
		t.Fatalf("SendReceive() = %v, %v; want RST with ErrReset", r.resp, r.err)
	}
	if f.client.Stats().ResetsReceived.Load() != 1 {
		t.Error("ResetsReceived not counted")
	}
}

func TestUntrackedResponseGetsReset(t *testing.T) {
	f := newRawFixture(t, exchange.TestParams(), true)

	b := testBuilder()
	ghost := build(t, b.CreateRequest(message.Confirmable, message.GET))
	f.send(t, build(t, b.Reset().CreateDelayedResponse(ghost, message.Content)))

	rst := f.receive(t)
	if !rst.IsReset() {
		t.Fatalf("got %s, want RST", rst)
	}
	if f.client.Stats().ResetsSent.Load() != 1 {
		t.Error("ResetsSent not counted")
	}
}

func TestSendReceiveContextCanceled(t *testing.T) {
	f := newRawFixture(t, exchange.TestParams(), false)

	req := build(t, f.builder.Reset().CreateRequest(message.Confirmable, message.GET))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-f.received:
		case <-time.After(testTimeout):
		}
		cancel()
	}()
	if _, err := f.client.SendReceive(ctx, req); !errors.Is(err, context.Canceled) {
		t.Errorf("SendReceive() error = %v, want context.Canceled", err)
	}
	if f.client.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d", f.client.Outstanding())
	}
}
