package transport

import (
	"net"
	"sync"

	"github.com/pion/logging"
	pionnet "github.com/pion/transport/v3"
)

// Channel is a started-or-stopped datagram endpoint.
type Channel interface {
	// Start begins delivering received datagrams to the channel's handler.
	Start() error
	// Stop closes the channel. A stopped channel cannot be restarted.
	Stop() error
	// Send writes one datagram to addr.
	Send(data []byte, addr net.Addr) error
	// LocalAddr returns the bound address.
	LocalAddr() net.Addr
}

// ChannelFactory creates channels for a messaging instance and takes them
// back when it stops.
type ChannelFactory interface {
	// Create opens a channel delivering datagrams to handler. The channel is
	// not started.
	Create(handler MessageHandler) (Channel, error)
	// Retire stops a channel returned by Create.
	Retire(ch Channel) error
}

// UDPFactory opens UDP channels on a fixed listen address.
type UDPFactory struct {
	// ListenAddr is the address each channel binds (e.g. ":5683").
	ListenAddr string
	// Net opens sockets. Defaults to the host network.
	Net pionnet.Net
	// LoggerFactory is passed to created channels.
	LoggerFactory logging.LoggerFactory

	mu     sync.Mutex
	active map[Channel]struct{}
}

// Create opens a UDP channel.
func (f *UDPFactory) Create(handler MessageHandler) (Channel, error) {
	u, err := NewUDP(UDPConfig{
		ListenAddr:     f.ListenAddr,
		Net:            f.Net,
		MessageHandler: handler,
		LoggerFactory:  f.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.active == nil {
		f.active = make(map[Channel]struct{})
	}
	f.active[u] = struct{}{}
	f.mu.Unlock()

	return u, nil
}

// Retire stops ch.
func (f *UDPFactory) Retire(ch Channel) error {
	f.mu.Lock()
	_, ok := f.active[ch]
	delete(f.active, ch)
	f.mu.Unlock()

	if !ok {
		return ErrUnknownChannel
	}
	return ch.Stop()
}

var _ ChannelFactory = (*UDPFactory)(nil)
