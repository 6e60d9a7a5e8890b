package messaging

import (
	"net"
	"time"

	"github.com/backkem/coap/pkg/message"
)

// MessageContext carries one message through the stack together with
// everything the layers above learn about it while processing.
type MessageContext struct {
	// Message is the parsed message. For malformed datagrams it holds
	// whatever decoded (at least the header).
	Message *message.Message

	// Source is the remote endpoint: the sender of an incoming message.
	Source net.Addr

	// Destination is the local endpoint the message arrived on.
	Destination net.Addr

	// Received is when the dispatcher picked the datagram up.
	Received time.Time

	// Error classifies a protocol failure attached to this message.
	Error message.ErrorKind

	// ResponseCode, ResponsePayload and ResponseOptions are filled in by
	// resource providers.
	ResponseCode    message.Code
	ResponsePayload []byte
	ResponseOptions message.Options

	// Response is the last response sent for this message, kept for
	// duplicate replay.
	Response *message.Message

	// Messaging is the instance the message arrived on.
	Messaging *Messaging
}

// NewMessageContext wraps msg for an exchange with source.
func NewMessageContext(msg *message.Message, source net.Addr) *MessageContext {
	return &MessageContext{Message: msg, Source: source, Received: time.Now()}
}

// Reply queues msg for the source of this context.
func (c *MessageContext) Reply(msg *message.Message) error {
	if c.Messaging == nil {
		return ErrNotRunning
	}
	return c.Messaging.SendAsync(msg, c.Source)
}
