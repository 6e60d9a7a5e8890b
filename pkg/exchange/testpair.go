package exchange

import (
	"net"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/transport"
	"github.com/pion/logging"
)

// =============================================================================
// Exported Test Infrastructure for E2E Testing
// =============================================================================

// TestPair connects a raw datagram peer to a Manager running on a
// Messaging instance, through an in-memory pipe. The peer side sends
// hand-built messages and reads back exactly what the server put on the
// wire:
//
// peer -> pipe -> transport -> messaging -> exchange.Manager -> Provider
//
// Usage:
//
//	pair, _ := exchange.NewTestPair(exchange.TestPairConfig{})
//	defer pair.Close()
//
//	pair.Registry().Add("echo", provider)
//	pair.Send(req)
//	resp, _ := pair.Receive(time.Second)
type TestPair struct {
	registry  *resource.Registry
	manager   *Manager
	messaging *messaging.Messaging
	pipe      *transport.Pipe
	peer      net.PacketConn
	server    net.Addr
	builder   *message.Builder
	received  chan *message.Message
	done      chan struct{}
}

// TestPairConfig configures the test pair.
type TestPairConfig struct {
	// Params for the manager. Zero fields get fast test defaults.
	Params TransmissionParameters

	// Pipe configures the in-memory network.
	Pipe transport.PipeConfig

	// Parser for the server side. Defaults to the messaging default.
	Parser *message.Parser

	// LoggerFactory for the server side.
	LoggerFactory logging.LoggerFactory
}

// TestParams are short, jitter-free timeouts for tests.
func TestParams() TransmissionParameters {
	p := DefaultParameters()
	p.AckTimeout = 20 * time.Millisecond
	p.AckRandomFactor = 1
	p.MaxLatency = 50 * time.Millisecond
	p.ProcessingDelay = 20 * time.Millisecond
	return p
}

// NewTestPair starts a manager on one side of a pipe.
func NewTestPair(config TestPairConfig) (*TestPair, error) {
	if config.Params == (TransmissionParameters{}) {
		config.Params = TestParams()
	}

	peerSide, serverSide := transport.NewPipeFactoryPairWithConfig(config.Pipe)

	registry := resource.NewRegistry()
	manager, err := NewManager(ManagerConfig{
		Router:        registry,
		Params:        config.Params,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	m, err := messaging.New(messaging.Config{
		ChannelFactory: serverSide,
		Parser:         config.Parser,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	m.Register(manager)
	if err := m.Start(); err != nil {
		return nil, err
	}

	pair := &TestPair{
		registry:  registry,
		manager:   manager,
		messaging: m,
		pipe:      peerSide.Pipe(),
		peer:      peerSide.PacketConn(),
		server:    peerSide.PeerAddr(),
		builder:   message.NewBuilder(message.NewIDGenerator(0x1000), message.NewTokenSource(0x1000, DefaultTokenLength)),
		received:  make(chan *message.Message, 100),
		done:      make(chan struct{}),
	}
	go pair.readLoop()
	return pair, nil
}

func (p *TestPair) readLoop() {
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, _, err := p.peer.ReadFrom(buf)
		if err != nil {
			return
		}
		msg, err := message.Decode(append([]byte(nil), buf[:n]...))
		if err != nil {
			continue
		}
		select {
		case p.received <- msg:
		case <-p.done:
			return
		}
	}
}

// Registry returns the provider registry the manager routes with.
func (p *TestPair) Registry() *resource.Registry { return p.registry }

// Manager returns the server-side exchange manager.
func (p *TestPair) Manager() *Manager { return p.manager }

// Messaging returns the server-side messaging instance.
func (p *TestPair) Messaging() *messaging.Messaging { return p.messaging }

// Builder returns a builder for peer-side messages.
func (p *TestPair) Builder() *message.Builder { return p.builder.Reset() }

// Pipe returns the underlying pipe for network simulation.
func (p *TestPair) Pipe() *transport.Pipe { return p.pipe }

// Send encodes msg and writes it to the server.
func (p *TestPair) Send(msg *message.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return p.SendRaw(data)
}

// SendRaw writes data to the server unchanged.
func (p *TestPair) SendRaw(data []byte) error {
	_, err := p.peer.WriteTo(data, p.server)
	return err
}

// Receive waits for the next message from the server.
func (p *TestPair) Receive(timeout time.Duration) (*message.Message, bool) {
	select {
	case msg := <-p.received:
		return msg, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Close stops the server side and the pipe.
func (p *TestPair) Close() {
	close(p.done)
	_ = p.messaging.Stop()
	_ = p.manager.Close()
	_ = p.pipe.Close()
}
