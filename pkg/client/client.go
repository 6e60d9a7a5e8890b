// Package client sends CoAP requests and waits for their responses.
//
// A Client registers itself as a handler on a messaging.Messaging
// instance, which it may share with a server: it consumes only the ACKs,
// RSTs and responses that match one of its outstanding requests.
package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/stats"
	"github.com/backkem/coap/pkg/uri"
	"github.com/pion/logging"
)

// Config configures a Client.
type Config struct {
	// Messaging carries the client's traffic. Required. Connect starts it
	// if it is not running yet.
	Messaging *messaging.Messaging

	// Params are the transmission parameters. Zero fields get RFC 7252
	// defaults.
	Params exchange.TransmissionParameters

	// Random jitters the initial timeout.
	Random exchange.RandomSource

	// Stats receives the client's counters. A private instance is used
	// when nil.
	Stats *stats.Statistics

	// IDs and Tokens generate message IDs and tokens for requests.
	IDs    *message.IDGenerator
	Tokens *message.TokenSource

	// ResetUntracked answers confirmable and non-confirmable responses
	// that match no outstanding request with a RST.
	ResetUntracked bool

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client is a synchronous CoAP client.
type Client struct {
	messaging      *messaging.Messaging
	params         exchange.TransmissionParameters
	random         exchange.RandomSource
	stats          *stats.Statistics
	ids            *message.IDGenerator
	tokens         *message.TokenSource
	resetUntracked bool
	log            logging.LeveledLogger

	waits *WaitTable

	mu         sync.Mutex
	remote     net.Addr
	registered bool
	started    bool
	closed     bool
}

// New creates a client. Call Connect before sending.
func New(config Config) (*Client, error) {
	if config.Messaging == nil {
		return nil, ErrNoMessaging
	}
	params := config.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if config.Random == nil {
		config.Random = exchange.DefaultRandomSource
	}
	if config.Stats == nil {
		config.Stats = stats.New()
	}
	if config.IDs == nil {
		config.IDs = message.NewIDGenerator(0)
	}
	if config.Tokens == nil {
		config.Tokens = message.NewTokenSource(0, params.TokenLength)
	}
	c := &Client{
		messaging:      config.Messaging,
		params:         params,
		random:         config.Random,
		stats:          config.Stats,
		ids:            config.IDs,
		tokens:         config.Tokens,
		resetUntracked: config.ResetUntracked,
		waits:          NewWaitTable(),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("coap-client")
	}
	return c, nil
}

// Connect attaches the client to its messaging instance and returns a
// builder template for requests to target.
//
// Requests go to intermediary when it is set (a forward proxy) and to the
// target's endpoint otherwise. The template carries the Uri-Host, Uri-Port,
// Uri-Path and Uri-Query options that address target from there.
func (c *Client) Connect(intermediary net.Addr, target *uri.URI) (*message.Builder, error) {
	destination := intermediary
	if destination == nil {
		if target == nil {
			return nil, uri.ErrNoEndpoint
		}
		addr, err := target.Resolve()
		if err != nil {
			return nil, err
		}
		destination = addr
	}

	var opts message.Options
	if target != nil {
		var err error
		if opts, err = target.Options(destination); err != nil {
			return nil, err
		}
	}

	if err := c.attach(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.remote = destination
	c.mu.Unlock()

	return c.Builder().WithPersistentOptions(opts), nil
}

// Register adds the client to its messaging handler chain without
// starting it. Clients sharing messaging with a server register before the
// server so they see responses first.
func (c *Client) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.registered {
		c.messaging.Register(c)
		c.registered = true
	}
	return nil
}

func (c *Client) attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.registered {
		c.messaging.Register(c)
		c.registered = true
	}
	if !c.messaging.Running() {
		err := c.messaging.Start()
		switch {
		case err == nil:
			c.started = true
		case !errors.Is(err, messaging.ErrAlreadyRunning):
			return err
		}
	}
	return nil
}

// Builder returns a fresh builder sharing the client's ID and token sources.
func (c *Client) Builder() *message.Builder {
	return message.NewBuilder(c.ids, c.tokens)
}

// Remote returns the endpoint set by Connect.
func (c *Client) Remote() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// SendReceive sends req to the connected endpoint and waits for the
// response.
func (c *Client) SendReceive(ctx context.Context, req *message.Message) (*message.Message, error) {
	remote := c.Remote()
	if remote == nil {
		return nil, ErrNotConnected
	}
	return c.SendReceiveTo(ctx, req, remote)
}

// SendReceiveTo sends req to dst and waits for the response.
//
// A confirmable request is retransmitted with exponential backoff until it
// is acknowledged or MaxRetransmit retransmissions went unanswered. After an
// empty ACK the client waits up to EXCHANGE_LIFETIME for the separate
// response. Confirmable responses are acknowledged. A RST from the peer is
// returned together with ErrReset.
func (c *Client) SendReceiveTo(ctx context.Context, req *message.Message, dst net.Addr) (*message.Message, error) {
	c.mu.Lock()
	closed, registered := c.closed, c.registered
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !registered {
		if err := c.attach(); err != nil {
			return nil, err
		}
	}

	holder, err := c.waits.WaitResponse(req)
	if err != nil {
		return nil, err
	}
	defer holder.Close()

	c.stats.RequestsSent.Add(1)
	retrans := exchange.NewRetransmission(c.params, c.random)
	timeout := retrans.Timeout
	if !req.IsConfirmable() {
		timeout = c.params.MaxTransmitWait()
	}

	var resp *message.Message
	for {
		if c.log != nil {
			c.log.Tracef("sending %s to %v", req, dst)
		}
		if err := c.messaging.SendAsync(req, dst); err != nil {
			return nil, err
		}

		resp, err = holder.Wait(ctx, timeout)
		if errors.Is(err, ErrAcknowledged) {
			resp, err = c.awaitSeparate(ctx, holder)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		if !req.IsConfirmable() || !retrans.ShouldRetry() {
			if c.log != nil {
				c.log.Warnf("no response to %d from %v", req.MessageID(), dst)
			}
			return nil, ErrTimeout
		}
		timeout = retrans.Timeout
		c.stats.RequestsRetransmissions.Add(1)
	}

	if resp.IsReset() {
		return resp, ErrReset
	}
	if resp.IsConfirmable() {
		ack, err := c.Builder().CreateAck(resp.MessageID()).Build()
		if err != nil {
			return nil, err
		}
		if err := c.messaging.SendAsync(ack, dst); err != nil {
			return nil, err
		}
		c.stats.AcksSent.Add(1)
	}
	return resp, nil
}

// awaitSeparate waits for the response to an acknowledged request.
func (c *Client) awaitSeparate(ctx context.Context, holder *WaitHolder) (*message.Message, error) {
	for {
		resp, err := holder.Wait(ctx, c.params.ExchangeLifetime())
		if errors.Is(err, ErrAcknowledged) {
			continue
		}
		return resp, err
	}
}

// OnMessage implements messaging.Handler.
func (c *Client) OnMessage(mctx *messaging.MessageContext) bool {
	msg := mctx.Message
	if msg == nil || msg.IsRequest() || msg.IsPing() {
		return false
	}

	wr := c.waits.Get(msg, msg.IsPiggybackedResponse())
	if wr == nil {
		if c.resetUntracked && msg.IsResponse() && !msg.IsAck() {
			c.sendReset(mctx)
			return true
		}
		return false
	}

	switch {
	case msg.IsEmptyAck():
		c.stats.AcksReceived.Add(1)
		wr.Acknowledge()
	case msg.IsReset():
		c.stats.ResetsReceived.Add(1)
		wr.SetResponse(msg)
	default:
		if msg.IsDelayedResponse() {
			c.stats.DelayedResponsesReceived.Add(1)
		} else {
			c.stats.ImmediateResponsesReceived.Add(1)
		}
		wr.SetResponse(msg)
	}
	return true
}

// OnError implements messaging.Handler. Responses with bad options are
// rejected with a RST.
func (c *Client) OnError(mctx *messaging.MessageContext) bool {
	msg := mctx.Message
	if msg == nil || msg.IsRequest() || c.waits.Get(msg, false) == nil {
		return false
	}
	c.stats.Errors.Add(1)
	if c.log != nil {
		c.log.Warnf("bad response %d from %v: %s", msg.MessageID(), mctx.Source, mctx.Error)
	}
	if msg.HasBadOptions() && !msg.IsAck() && !msg.IsReset() {
		c.sendReset(mctx)
	}
	return true
}

func (c *Client) sendReset(mctx *messaging.MessageContext) {
	rst, err := c.Builder().CreateResetResponse(mctx.Message).Build()
	if err != nil {
		return
	}
	if c.log != nil {
		c.log.Debugf("sending RST for untracked %d to %v", mctx.Message.MessageID(), mctx.Source)
	}
	if err := mctx.Reply(rst); err == nil {
		c.stats.ResetsSent.Add(1)
	}
}

// Outstanding returns the number of requests awaiting a response.
func (c *Client) Outstanding() int { return c.waits.Len() }

// Stats returns the client's counters.
func (c *Client) Stats() *stats.Statistics { return c.stats }

// Params returns the effective transmission parameters.
func (c *Client) Params() exchange.TransmissionParameters { return c.params }

// Close detaches the client from its messaging instance and stops the
// instance if Connect started it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	registered, started := c.registered, c.started
	c.mu.Unlock()

	if registered {
		c.messaging.Unregister(c)
	}
	if started {
		if err := c.messaging.Stop(); err != nil && !errors.Is(err, messaging.ErrNotRunning) {
			return err
		}
	}
	return nil
}

var _ messaging.Handler = (*Client)(nil)
