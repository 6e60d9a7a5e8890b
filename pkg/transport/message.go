package transport

import "net"

// MaxDatagramSize bounds datagrams read from and written to a channel.
const MaxDatagramSize = 1500

// ReceivedMessage is a datagram read from a channel. Data is a private copy
// owned by the receiver.
type ReceivedMessage struct {
	// Data contains the raw datagram.
	Data []byte
	// Source is the sender's address.
	Source net.Addr
	// Destination is the local address the datagram arrived on.
	Destination net.Addr
}

// MessageHandler is called for each received datagram.
// Implementations should return quickly; the channel's read loop is blocked
// until the handler returns.
type MessageHandler func(msg *ReceivedMessage)
