package transport

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Impairment degrades delivery on a Pipe. The zero value delivers every
// datagram exactly once.
type Impairment struct {
	// Loss is the probability a datagram is silently lost.
	Loss float64
	// Duplicate is the probability a datagram is delivered twice.
	Duplicate float64
	// Drop, when set, discards datagrams it returns true for. It runs
	// after Loss.
	Drop func(from PipeAddr, data []byte) bool
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// Manual disables the delivery goroutine; call Flush to deliver.
	Manual bool
	// Interval between delivery rounds. Default 1ms.
	Interval time.Duration
}

// Pipe connects two datagram endpoints in memory on top of pion's
// test.Bridge. Its endpoints are addressed PipeAddr{Side: 0} and
// PipeAddr{Side: 1}, both on DefaultPort.
type Pipe struct {
	bridge *test.Bridge
	stop   chan struct{}
	done   chan struct{}

	mu     sync.RWMutex
	imp    Impairment
	closed bool
}

func newPipe(config PipeConfig) *Pipe {
	p := &Pipe{bridge: test.NewBridge(), stop: make(chan struct{})}
	if config.Manual {
		return p
	}
	interval := config.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	p.done = make(chan struct{})
	go p.deliver(interval)
	return p
}

func (p *Pipe) deliver(interval time.Duration) {
	defer close(p.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			for p.bridge.Tick() > 0 {
			}
		}
	}
}

// Impair replaces the pipe's impairment for both directions.
func (p *Pipe) Impair(imp Impairment) {
	p.mu.Lock()
	p.imp = imp
	p.mu.Unlock()
}

func (p *Pipe) impairment() Impairment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.imp
}

// Flush delivers everything queued and returns the datagram count.
func (p *Pipe) Flush() int {
	n := 0
	for {
		k := p.bridge.Tick()
		if k == 0 {
			return n
		}
		n += k
	}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	if p.done != nil {
		<-p.done
	}
	return errors.Join(p.bridge.GetConn0().Close(), p.bridge.GetConn1().Close())
}

// PipeAddr is the address of one side of a Pipe.
type PipeAddr struct {
	Side int
	Port int
}

// Network implements net.Addr.
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.Side, a.Port) }

// pipeConn adapts one side of the bridge to net.PacketConn. Writes ignore
// the destination since each side has exactly one peer.
type pipeConn struct {
	net.Conn
	pipe  *Pipe
	local PipeAddr
	peer  PipeAddr
}

func (c *pipeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.Read(b)
	return n, c.peer, err
}

func (c *pipeConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	imp := c.pipe.impairment()
	if imp.Loss > 0 && rand.Float64() < imp.Loss {
		return len(b), nil
	}
	if imp.Drop != nil && imp.Drop(c.local, b) {
		return len(b), nil
	}
	if imp.Duplicate > 0 && rand.Float64() < imp.Duplicate {
		if _, err := c.Write(b); err != nil {
			return 0, err
		}
	}
	return c.Write(b)
}

func (c *pipeConn) LocalAddr() net.Addr { return c.local }

// PipeFactory is a ChannelFactory for one side of a Pipe. A side carries a
// single channel for its whole life.
type PipeFactory struct {
	pipe *Pipe
	side int

	mu      sync.Mutex
	conn    *pipeConn
	channel Channel
}

// NewPipeFactoryPair returns the two sides of a new auto-delivering pipe.
func NewPipeFactoryPair() (*PipeFactory, *PipeFactory) {
	return NewPipeFactoryPairWithConfig(PipeConfig{})
}

// NewPipeFactoryPairWithConfig returns the two sides of a new pipe.
func NewPipeFactoryPairWithConfig(config PipeConfig) (*PipeFactory, *PipeFactory) {
	p := newPipe(config)
	return &PipeFactory{pipe: p, side: 0}, &PipeFactory{pipe: p, side: 1}
}

// Pipe returns the shared pipe.
func (f *PipeFactory) Pipe() *Pipe { return f.pipe }

// Impair is shorthand for f.Pipe().Impair.
func (f *PipeFactory) Impair(imp Impairment) { f.pipe.Impair(imp) }

// LocalAddr is this side's address.
func (f *PipeFactory) LocalAddr() net.Addr { return PipeAddr{Side: f.side, Port: DefaultPort} }

// PeerAddr is the other side's address.
func (f *PipeFactory) PeerAddr() net.Addr { return PipeAddr{Side: 1 - f.side, Port: DefaultPort} }

// PacketConn returns this side as a raw packet connection, for tests that
// play a peer by hand. Repeated calls return the same connection.
func (f *PipeFactory) PacketConn() net.PacketConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connLocked()
}

func (f *PipeFactory) connLocked() *pipeConn {
	if f.conn == nil {
		c := f.pipe.bridge.GetConn0()
		if f.side == 1 {
			c = f.pipe.bridge.GetConn1()
		}
		f.conn = &pipeConn{
			Conn:  c,
			pipe:  f.pipe,
			local: PipeAddr{Side: f.side, Port: DefaultPort},
			peer:  PipeAddr{Side: 1 - f.side, Port: DefaultPort},
		}
	}
	return f.conn
}

// Create returns a UDP channel over this side.
func (f *PipeFactory) Create(handler MessageHandler) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channel != nil {
		return nil, ErrAlreadyStarted
	}
	ch, err := NewUDP(UDPConfig{Conn: f.connLocked(), MessageHandler: handler})
	if err != nil {
		return nil, err
	}
	f.channel = ch
	return ch, nil
}

// Retire stops the channel made by Create.
func (f *PipeFactory) Retire(ch Channel) error {
	f.mu.Lock()
	owned := f.channel == ch
	f.mu.Unlock()
	if !owned {
		return ErrUnknownChannel
	}
	return ch.Stop()
}

var (
	_ ChannelFactory = (*PipeFactory)(nil)
	_ net.PacketConn = (*pipeConn)(nil)
)
