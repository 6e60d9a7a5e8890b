// Package messaging moves CoAP messages between a datagram channel and the
// protocol handlers above it.
//
// Received datagrams are queued by the channel's read loop and drained by a
// single dispatcher goroutine, which parses them and offers each message to
// the registered handlers in order until one consumes it. Outgoing messages
// are queued by SendAsync and written by the same dispatcher, so handlers
// never block on the network.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// Handler receives messages from a Messaging instance.
// Both methods run on the dispatcher goroutine and return true when the
// message was consumed; unconsumed messages are offered to the next handler.
type Handler interface {
	// OnMessage is called for every message that parsed cleanly.
	OnMessage(ctx *MessageContext) bool

	// OnError is called for messages with bad options or a malformed body
	// behind a valid header. ctx.Error says which.
	OnError(ctx *MessageContext) bool
}

// Config configures a Messaging instance.
type Config struct {
	// ChannelFactory opens the channel on Start and retires it on Stop.
	// Required.
	ChannelFactory transport.ChannelFactory

	// Parser decodes datagrams. Defaults to a parser accepting text/plain.
	Parser *message.Parser

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

type outgoing struct {
	msg *message.Message
	to  net.Addr
}

// Messaging owns one channel and the queues between it and the handlers.
type Messaging struct {
	factory       transport.ChannelFactory
	parser        *message.Parser
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	running atomic.Bool
	wake    chan struct{}

	mu       sync.Mutex
	handlers []Handler
	incoming []*transport.ReceivedMessage
	outgoing []outgoing
	channel  transport.Channel
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// New creates a stopped Messaging instance.
func New(config Config) (*Messaging, error) {
	if config.ChannelFactory == nil {
		return nil, ErrNoChannelFactory
	}
	m := &Messaging{
		factory:       config.ChannelFactory,
		parser:        config.Parser,
		loggerFactory: config.LoggerFactory,
		wake:          make(chan struct{}, 1),
	}
	if m.parser == nil {
		m.parser = message.NewParser(message.ParserConfig{LoggerFactory: config.LoggerFactory})
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("coap-messaging")
	}
	return m, nil
}

// Register appends h to the handler chain.
func (m *Messaging) Register(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Unregister removes h from the handler chain.
func (m *Messaging) Unregister(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.handlers {
		if cur == h {
			m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
			return
		}
	}
}

// Start opens the channel and starts the dispatcher.
func (m *Messaging) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return ErrAlreadyRunning
	}

	ch, err := m.factory.Create(m.receive)
	if err != nil {
		return fmt.Errorf("messaging: create channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	m.channel = ch
	m.incoming = nil
	m.outgoing = nil
	m.cancel = cancel
	m.group = group
	m.running.Store(true)

	if err := ch.Start(); err != nil {
		m.running.Store(false)
		cancel()
		_ = m.factory.Retire(ch)
		return fmt.Errorf("messaging: start channel: %w", err)
	}

	group.Go(func() error { return m.dispatchLoop(ctx) })

	if m.log != nil {
		m.log.Infof("messaging started on %s", ch.LocalAddr())
	}
	return nil
}

// Stop retires the channel, drops queued messages and waits for the
// dispatcher to exit.
func (m *Messaging) Stop() error {
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running.Store(false)
	ch, cancel, group := m.channel, m.cancel, m.group
	m.incoming = nil
	m.outgoing = nil
	m.mu.Unlock()

	retireErr := m.factory.Retire(ch)
	cancel()
	m.signal()
	err := group.Wait()

	if m.log != nil {
		m.log.Infof("messaging stopped on %s", ch.LocalAddr())
	}
	if retireErr != nil && !errors.Is(retireErr, transport.ErrClosed) {
		return retireErr
	}
	return err
}

// Running reports whether the dispatcher is active.
func (m *Messaging) Running() bool { return m.running.Load() }

// LocalAddr returns the channel's address, nil when stopped.
func (m *Messaging) LocalAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channel == nil {
		return nil
	}
	return m.channel.LocalAddr()
}

// Parser returns the parser used for incoming datagrams.
func (m *Messaging) Parser() *message.Parser { return m.parser }

// LoggerFactory returns the configured logger factory, possibly nil.
func (m *Messaging) LoggerFactory() logging.LoggerFactory { return m.loggerFactory }

// SendAsync queues msg for delivery to the given address.
func (m *Messaging) SendAsync(msg *message.Message, to net.Addr) error {
	if to == nil {
		return transport.ErrInvalidAddress
	}
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.outgoing = append(m.outgoing, outgoing{msg: msg, to: to})
	m.mu.Unlock()

	m.signal()
	return nil
}

// receive is the channel's MessageHandler. Datagrams arriving after Stop
// are discarded.
func (m *Messaging) receive(rm *transport.ReceivedMessage) {
	if !m.running.Load() {
		return
	}
	m.mu.Lock()
	m.incoming = append(m.incoming, rm)
	m.mu.Unlock()

	m.signal()
}

func (m *Messaging) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop drains at most the messages queued at wake-up time per
// iteration, alternating one incoming and one outgoing.
func (m *Messaging) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
		}

		m.mu.Lock()
		count := max(len(m.incoming), len(m.outgoing))
		m.mu.Unlock()

		for i := 0; i < count && m.running.Load(); i++ {
			if in := m.popIncoming(); in != nil {
				m.processIncoming(in)
			}
			if out, ok := m.popOutgoing(); ok {
				m.processOutgoing(out)
			}
		}
	}
}

func (m *Messaging) popIncoming() *transport.ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.incoming) == 0 {
		return nil
	}
	rm := m.incoming[0]
	m.incoming[0] = nil
	m.incoming = m.incoming[1:]
	return rm
}

func (m *Messaging) popOutgoing() (outgoing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outgoing) == 0 {
		return outgoing{}, false
	}
	out := m.outgoing[0]
	m.outgoing[0] = outgoing{}
	m.outgoing = m.outgoing[1:]
	return out, true
}

func (m *Messaging) processIncoming(rm *transport.ReceivedMessage) {
	msg, err := m.parser.Parse(rm.Data)
	if msg == nil {
		if m.log != nil {
			m.log.Debugf("dropping undecodable datagram from %v: %v", rm.Source, err)
		}
		return
	}

	mctx := &MessageContext{
		Message:     msg,
		Source:      rm.Source,
		Destination: rm.Destination,
		Received:    time.Now(),
		Messaging:   m,
	}

	switch {
	case err == nil:
		m.dispatch(mctx, false)
	case message.IsOptionError(err):
		mctx.Error = message.ErrorOptionError
		m.dispatch(mctx, true)
	default:
		mctx.Error = message.ErrorMalformed
		m.dispatch(mctx, true)
	}
}

func (m *Messaging) dispatch(mctx *MessageContext, isError bool) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			if m.log != nil {
				m.log.Errorf("handler panic for %s from %v: %v", mctx.Message, mctx.Source, r)
			}
			if isError {
				return
			}
			mctx.Error = message.ErrorProvider
			m.dispatch(mctx, true)
		}
	}()

	for _, h := range handlers {
		var consumed bool
		if isError {
			consumed = h.OnError(mctx)
		} else {
			consumed = h.OnMessage(mctx)
		}
		if consumed {
			return
		}
	}
	if m.log != nil {
		m.log.Tracef("no handler consumed %s from %v", mctx.Message, mctx.Source)
	}
}

func (m *Messaging) processOutgoing(out outgoing) {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()

	raw := out.msg.Raw()
	if raw == nil {
		var err error
		if raw, err = out.msg.Encode(); err != nil {
			if m.log != nil {
				m.log.Errorf("cannot encode %s: %v", out.msg, err)
			}
			return
		}
	}
	if err := ch.Send(raw, out.to); err != nil && m.log != nil {
		m.log.Warnf("send %s to %v failed: %v", out.msg, out.to, err)
	}
}
