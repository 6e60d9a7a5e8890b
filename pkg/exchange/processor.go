package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
)

// Processor drives one exchange through its states.
//
// Transitions are sequential: a processor holds its lock while stepping,
// and timer or worker callbacks resume it through the same lock. A step
// either names the next state or suspends the processor until a callback
// resumes it.
type Processor struct {
	m    *Manager
	mctx *messaging.MessageContext

	// key is the request's (source, message ID), used for duplicate
	// detection.
	key peerKey

	provider resource.Provider

	// response is the answer sent (or awaiting ACK) for the request.
	response *message.Message

	retransmission *Retransmission
	ack            *pendingAck

	// delayed is set once the request was acknowledged with an empty ACK;
	// any answer after that is a separate response.
	delayed bool

	state   State
	history []State
	mu      sync.Mutex
}

func newProcessor(m *Manager, mctx *messaging.MessageContext) *Processor {
	return &Processor{
		m:    m,
		mctx: mctx,
		key:  newPeerKey(mctx.Source, mctx.Message.MessageID()),
	}
}

// State returns the current state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns the states visited so far, in order.
func (p *Processor) History() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]State(nil), p.history...)
}

// Context returns the message context the processor works on.
func (p *Processor) Context() *messaging.MessageContext { return p.mctx }

// run moves the processor to s and keeps stepping until it suspends.
func (p *Processor) run(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(s)
}

// resume is run for callbacks: it only proceeds when the processor is
// still in the expected state.
func (p *Processor) resume(expected, next State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != expected {
		return false
	}
	p.advanceLocked(next)
	return true
}

func (p *Processor) advanceLocked(next State) {
	for {
		if !CanTransition(p.state, next) {
			if p.m.log != nil {
				p.m.log.Errorf("%v: %s -> %s for %s", ErrInvalidTransition, p.state, next, p.mctx.Message)
			}
			return
		}
		p.state = next
		p.history = append(p.history, next)

		var ok bool
		next, ok = p.step(next)
		if !ok {
			return
		}
	}
}

// step performs the action of s and returns the next state, or false when
// the processor suspends.
func (p *Processor) step(s State) (State, bool) {
	switch s {
	case StateMessageReceived:
		return p.messageReceived(), true
	case StateDelayedProcessing:
		p.delayedProcessing()
		return 0, false
	case StateImmediateResponseAvailable:
		return p.immediateResponseAvailable()
	case StateSendMessageAndTrackExchangeLifetime:
		return p.sendAndTrackLifetime(), true
	case StateDelayedResponseAvailable:
		return p.delayedResponseAvailable()
	case StateAwaitingAck:
		return p.awaitingAck()
	case StateRetransmitDelayedResponse:
		return p.retransmitDelayedResponse(), true
	case StateAckReceived:
		return p.ackReceived(), true
	case StateResetReceived:
		return p.resetReceived(), true
	case StateSendReset:
		return p.sendReset(), true
	case StateBadOptions:
		return p.badOptions(), true
	case StateError:
		return p.error(), true
	case StateReplayResponse:
		return p.replayResponse(), true
	case StateArchive:
		p.archive()
		return 0, false
	}
	return 0, false
}

func (p *Processor) messageReceived() State {
	msg := p.mctx.Message
	log := p.m.log

	switch {
	case msg.IsReset():
		if log != nil {
			log.Warnf("received RST %d from %v", msg.MessageID(), p.mctx.Source)
		}
		return StateResetReceived
	case msg.IsEmpty():
		if log != nil {
			log.Debugf("received ping %d from %v, sending RST", msg.MessageID(), p.mctx.Source)
		}
		return StateSendReset
	case !msg.IsRequest():
		if log != nil {
			log.Warnf("unexpected %s from %v, sending RST", msg, p.mctx.Source)
		}
		return StateSendReset
	}

	if stored, fresh := p.m.dedup.Track(p.key, p.lifetime()); !fresh {
		p.response = stored
		return StateReplayResponse
	}

	p.m.stats.RequestsReceived.Add(1)
	if log != nil {
		log.Debugf("received %s from %v", msg, p.mctx.Source)
	}
	return p.route()
}

// route finds the provider for the request path and runs it right away
// when it can answer immediately.
func (p *Processor) route() State {
	msg := p.mctx.Message
	path := msg.Options.Path()

	var provider resource.Provider
	var ok bool
	if rr, isRequestRouter := p.m.router.(resource.RequestRouter); isRequestRouter {
		provider, ok = rr.Route(msg)
	} else {
		provider, ok = p.m.router.Lookup(path)
	}
	if !ok {
		p.m.stats.Errors.Add(1)
		if p.m.log != nil {
			p.m.log.Warnf("no provider for %q", path)
		}
		p.mctx.ResponseCode = message.NotFound
		return StateImmediateResponseAvailable
	}
	if provider.Capabilities().Has(resource.ReadOnly) && !msg.IsGET() {
		p.m.stats.Errors.Add(1)
		if p.m.log != nil {
			p.m.log.Warnf("method %s not allowed on read-only %q", msg.Code(), path)
		}
		p.mctx.ResponseCode = message.MethodNotAllowed
		return StateImmediateResponseAvailable
	}

	p.provider = provider
	if !provider.CanFetchImmediateResponse(msg) {
		return StateDelayedProcessing
	}
	if err := p.execute(p.m.ctx); err != nil {
		return StateError
	}
	return StateImmediateResponseAvailable
}

// execute runs the provider and stores its answer in the context.
// Failures leave a 5.00 response code and ErrorProvider.
func (p *Processor) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
		if err != nil {
			if p.m.log != nil {
				p.m.log.Errorf("provider failed for %s: %v", p.mctx.Message, err)
			}
			p.mctx.Error = message.ErrorProvider
			p.mctx.ResponseCode = message.InternalServerError
			p.mctx.ResponsePayload = nil
			p.mctx.ResponseOptions = message.Options{}
		}
	}()

	var resp resource.Response
	code, err := p.provider.ExecuteMethod(ctx, p.mctx.Message, &resp)
	if err != nil {
		return err
	}
	p.mctx.ResponseCode = code
	p.mctx.ResponsePayload = resp.Payload
	p.mctx.ResponseOptions = resp.Options
	return nil
}

func (p *Processor) delayedProcessing() {
	msg := p.mctx.Message
	p.delayed = true
	if msg.IsConfirmable() {
		ack, err := p.m.builder().CreateAck(msg.MessageID()).Build()
		if err == nil {
			p.m.dedup.SetResponse(p.key, ack)
			p.m.stats.AcksSent.Add(1)
			p.send(ack)
		}
	}

	p.m.runWorker(p, func(ctx context.Context) {
		next := StateDelayedResponseAvailable
		if err := p.execute(ctx); err != nil {
			next = StateError
		}
		if ctx.Err() != nil {
			next = StateArchive
		}
		p.resume(StateDelayedProcessing, next)
	})
}

func (p *Processor) immediateResponseAvailable() (State, bool) {
	req := p.mctx.Message
	b := p.m.builder()
	if req.IsConfirmable() {
		b.CreatePiggybackedResponse(req, p.mctx.ResponseCode)
	} else {
		b.CreateDelayedResponse(req, p.mctx.ResponseCode)
	}
	resp, err := p.withResponseContent(b).Build()
	if err != nil {
		if p.m.log != nil {
			p.m.log.Errorf("cannot build response to %s: %v", req, err)
		}
		p.m.stats.Errors.Add(1)
		return StateArchive, true
	}
	p.response = resp
	p.m.stats.ImmediateResponsesSent.Add(1)
	return StateSendMessageAndTrackExchangeLifetime, true
}

// withResponseContent adds the provider's options and, when allowed, its
// payload. 2.03 Valid and successful POST responses go without payload.
func (p *Processor) withResponseContent(b *message.Builder) *message.Builder {
	b.WithOptions(p.mctx.ResponseOptions)
	code := p.mctx.ResponseCode
	switch {
	case code == message.Valid:
	case code.IsSuccess() && p.mctx.Message.Code() == message.POST:
	default:
		b.WithPayload(p.mctx.ResponsePayload)
	}
	return b
}

func (p *Processor) sendAndTrackLifetime() State {
	p.m.dedup.SetResponse(p.key, p.response)
	p.mctx.Response = p.response
	if p.m.log != nil {
		p.m.log.Debugf("sending %s to %v", p.response, p.mctx.Source)
	}
	p.send(p.response)
	return StateArchive
}

func (p *Processor) delayedResponseAvailable() (State, bool) {
	req := p.mctx.Message
	resp, err := p.withResponseContent(p.m.builder().CreateDelayedResponse(req, p.mctx.ResponseCode)).Build()
	if err != nil {
		if p.m.log != nil {
			p.m.log.Errorf("cannot build delayed response to %s: %v", req, err)
		}
		p.m.stats.Errors.Add(1)
		return StateArchive, true
	}
	p.m.stats.DelayedResponsesSent.Add(1)
	p.response = resp
	p.mctx.Response = resp

	if req.IsConfirmable() {
		return StateAwaitingAck, true
	}
	if p.m.log != nil {
		p.m.log.Debugf("sending NON delayed response %s to %v", resp, p.mctx.Source)
	}
	p.m.dedup.SetResponse(p.key, resp)
	p.send(resp)
	return StateArchive, true
}

func (p *Processor) awaitingAck() (State, bool) {
	if p.ack != nil {
		// Back from a retransmission.
		p.m.acks.Rearm(p.ack, p.retransmission.Timeout)
		return 0, false
	}

	p.retransmission = NewRetransmission(p.m.params, p.m.random)
	key := newPeerKey(p.mctx.Source, p.response.MessageID())
	entry, err := p.m.acks.Track(key, p, p.retransmission.Timeout, p.onAckTimeout)
	if err != nil {
		if p.m.log != nil {
			p.m.log.Errorf("cannot track ACK for %d: %v", p.response.MessageID(), err)
		}
		return StateArchive, true
	}
	p.ack = entry

	if p.m.log != nil {
		p.m.log.Debugf("sending CON delayed response %s to %v", p.response, p.mctx.Source)
	}
	p.send(p.response)
	return 0, false
}

// onAckTimeout runs on the timer goroutine.
func (p *Processor) onAckTimeout(entry *pendingAck) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateAwaitingAck || p.ack != entry || !p.m.acks.isCurrent(entry) {
		return
	}
	if p.retransmission.ShouldRetry() {
		if p.m.log != nil {
			p.m.log.Warnf("ACK for %d timed out, retrying (%d left)", p.response.MessageID(), p.retransmission.Remaining)
		}
		p.advanceLocked(StateRetransmitDelayedResponse)
		return
	}

	if p.m.log != nil {
		p.m.log.Errorf("%v: message ID %d to %v", ErrAckNotReceived, p.response.MessageID(), p.mctx.Source)
	}
	p.m.acks.remove(entry)
	p.mctx.Error = message.ErrorAckNotReceived
	p.advanceLocked(StateError)
}

func (p *Processor) retransmitDelayedResponse() State {
	p.m.stats.DelayedResponsesRetransmissions.Add(1)
	if p.m.log != nil {
		p.m.log.Debugf("re-sending delayed response %d to %v", p.response.MessageID(), p.mctx.Source)
	}
	p.send(p.response)
	return StateAwaitingAck
}

func (p *Processor) ackReceived() State {
	p.m.stats.AcksReceived.Add(1)
	if p.m.log != nil {
		p.m.log.Debugf("ACK received for %d from %v", p.response.MessageID(), p.mctx.Source)
	}
	return StateArchive
}

func (p *Processor) resetReceived() State {
	p.m.stats.ResetsReceived.Add(1)
	return StateArchive
}

func (p *Processor) sendReset() State {
	rst, err := p.m.builder().CreateResetResponse(p.mctx.Message).Build()
	if err != nil {
		return StateArchive
	}
	p.m.stats.ResetsSent.Add(1)
	p.m.dedup.SetResponse(p.key, rst)
	p.mctx.Response = rst
	p.send(rst)
	return StateArchive
}

func (p *Processor) badOptions() State {
	msg := p.mctx.Message
	p.m.stats.Errors.Add(1)
	if p.m.log != nil {
		p.m.log.Warnf("%s from %v: %s", msg, p.mctx.Source, msg.Diagnostic())
	}
	if !msg.IsConfirmable() || !msg.IsRequest() {
		return StateSendReset
	}

	p.m.dedup.Track(p.key, p.lifetime())
	switch {
	case msg.Flags.Has(message.FlagBadOption):
		p.mctx.ResponseCode = message.BadOption
		p.mctx.ResponsePayload = []byte(msg.Diagnostic())
	case msg.Flags.Has(message.FlagNotAcceptable):
		p.mctx.ResponseCode = message.NotAcceptable
	default:
		p.mctx.ResponseCode = message.BadRequest
	}
	return StateImmediateResponseAvailable
}

func (p *Processor) error() State {
	msg := p.mctx.Message
	p.m.stats.Errors.Add(1)

	if p.mctx.Error == message.ErrorAckNotReceived {
		return StateArchive
	}
	if !msg.IsConfirmable() {
		if p.m.log != nil {
			p.m.log.Warnf("error %s processing NON %d, dropping", p.mctx.Error, msg.MessageID())
		}
		return StateArchive
	}
	if !msg.IsRequest() {
		return StateSendReset
	}

	if p.mctx.ResponseCode == message.Empty || p.mctx.ResponseCode.IsSuccess() {
		switch p.mctx.Error {
		case message.ErrorMalformed:
			p.mctx.ResponseCode = message.BadRequest
		default:
			p.mctx.ResponseCode = message.InternalServerError
		}
	}
	if p.m.log != nil {
		p.m.log.Warnf("error %s processing CON %d, answering %s", p.mctx.Error, msg.MessageID(), p.mctx.ResponseCode)
	}
	if p.delayed {
		return StateDelayedResponseAvailable
	}
	return StateImmediateResponseAvailable
}

func (p *Processor) replayResponse() State {
	if p.response == nil {
		if p.m.log != nil {
			p.m.log.Debugf("duplicate %d from %v still in progress", p.mctx.Message.MessageID(), p.mctx.Source)
		}
		return StateArchive
	}
	p.m.stats.ImmediateResponsesSent.Add(1)
	if p.m.log != nil {
		p.m.log.Debugf("replaying %s to %v", p.response, p.mctx.Source)
	}
	p.send(p.response)
	return StateArchive
}

func (p *Processor) archive() {
	if p.ack != nil {
		p.m.acks.remove(p.ack)
	}
	p.m.deregister(p)
	if p.m.log != nil {
		p.m.log.Tracef("archived exchange %d from %v", p.mctx.Message.MessageID(), p.mctx.Source)
	}
}

func (p *Processor) lifetime() time.Duration {
	if p.mctx.Message.IsConfirmable() {
		return p.m.params.ExchangeLifetime()
	}
	return p.m.params.NonLifetime()
}

func (p *Processor) send(msg *message.Message) {
	if err := p.mctx.Reply(msg); err != nil && p.m.log != nil {
		p.m.log.Warnf("cannot send %s to %v: %v", msg, p.mctx.Source, err)
	}
}
