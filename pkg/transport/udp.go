package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	pionnet "github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
)

const (
	udpIdle int32 = iota
	udpRunning
	udpStopped
)

// UDP is a Channel over a net.PacketConn. Each received datagram is copied
// and handed to the MessageHandler on the read goroutine.
type UDP struct {
	conn    net.PacketConn
	local   net.Addr
	handler MessageHandler
	log     logging.LeveledLogger

	state atomic.Int32
	wg    sync.WaitGroup
}

// UDPConfig configures NewUDP.
type UDPConfig struct {
	// Conn, when set, is used as is and ListenAddr is ignored.
	Conn net.PacketConn

	// ListenAddr is bound when Conn is nil. Default ":0".
	ListenAddr string

	// Net opens the socket for ListenAddr. Defaults to the host network.
	Net pionnet.Net

	// MessageHandler receives every datagram. Required.
	MessageHandler MessageHandler

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewUDP opens (or adopts) the socket. The read loop starts with Start.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	conn := config.Conn
	if conn == nil {
		nw := config.Net
		if nw == nil {
			std, err := stdnet.NewNet()
			if err != nil {
				return nil, err
			}
			nw = std
		}
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		c, err := nw.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	u := &UDP{conn: conn, local: conn.LocalAddr(), handler: config.MessageHandler}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}
	return u, nil
}

// Start launches the read loop.
func (u *UDP) Start() error {
	if !u.state.CompareAndSwap(udpIdle, udpRunning) {
		if u.state.Load() == udpStopped {
			return ErrClosed
		}
		return ErrAlreadyStarted
	}
	if u.log != nil {
		u.log.Infof("listening on %v", u.local)
	}
	u.wg.Add(1)
	go u.readLoop()
	return nil
}

// Stop closes the socket and waits for the read loop. A stopped channel
// cannot be restarted.
func (u *UDP) Stop() error {
	if u.state.Swap(udpStopped) == udpStopped {
		return ErrClosed
	}
	_ = u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()
	if u.log != nil {
		u.log.Infof("closed %v", u.local)
	}
	return err
}

// Send writes data as one datagram. Sending before Start is allowed.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	switch {
	case u.state.Load() == udpStopped:
		return ErrClosed
	case addr == nil:
		return ErrInvalidAddress
	case len(data) > MaxDatagramSize:
		return ErrMessageTooLarge
	}
	if _, err := u.conn.WriteTo(data, addr); err != nil {
		if u.log != nil {
			u.log.Warnf("write %d bytes to %v: %v", len(data), addr, err)
		}
		return err
	}
	return nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr { return u.local }

func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, err := u.conn.ReadFrom(buf)
		if u.state.Load() == udpStopped {
			return
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			if u.log != nil {
				u.log.Warnf("socket %v closed underneath the channel", u.local)
			}
			return
		}
		if err != nil {
			if u.log != nil {
				u.log.Warnf("read on %v: %v", u.local, err)
			}
			continue
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		u.handler(&ReceivedMessage{Data: data, Source: src, Destination: u.local})
	}
}

var _ Channel = (*UDP)(nil)
