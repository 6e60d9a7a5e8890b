package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
)

// VirtualNetworkConfig configures a VirtualNetwork.
type VirtualNetworkConfig struct {
	// CIDR is the subnet endpoints are addressed from. Default "10.0.0.0/24".
	CIDR string

	// LoggerFactory is passed to the router. Defaults to a no-op factory.
	LoggerFactory logging.LoggerFactory
}

// VirtualNetwork is an in-memory routed IPv4 network for tests that need
// more than two endpoints, such as client, proxy and origin. Each endpoint
// gets its own vnet.Net with a static IP, so sockets see real *net.UDPAddr
// source addresses.
type VirtualNetwork struct {
	router *vnet.Router
	log    logging.LoggerFactory

	mu     sync.RWMutex
	drop   func(src, dst net.Addr, data []byte) bool
	closed bool
}

// NewVirtualNetwork creates and starts a router.
func NewVirtualNetwork(config VirtualNetworkConfig) (*VirtualNetwork, error) {
	if config.CIDR == "" {
		config.CIDR = "10.0.0.0/24"
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          config.CIDR,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: create router: %w", err)
	}

	v := &VirtualNetwork{router: router, log: config.LoggerFactory}
	router.AddChunkFilter(v.filter)

	if err := router.Start(); err != nil {
		return nil, fmt.Errorf("transport: start router: %w", err)
	}
	return v, nil
}

func (v *VirtualNetwork) filter(c vnet.Chunk) bool {
	v.mu.RLock()
	drop := v.drop
	v.mu.RUnlock()
	if drop == nil {
		return true
	}
	return !drop(c.SourceAddr(), c.DestinationAddr(), c.UserData())
}

// SetDropFunc installs a predicate deciding which datagrams the router
// discards. Pass nil to deliver everything.
func (v *VirtualNetwork) SetDropFunc(drop func(src, dst net.Addr, data []byte) bool) {
	v.mu.Lock()
	v.drop = drop
	v.mu.Unlock()
}

// Endpoint attaches a host with the given IP to the network and returns a
// channel factory binding ip:port on it.
func (v *VirtualNetwork) Endpoint(ip string, port int) (*UDPFactory, error) {
	nw, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
	if err != nil {
		return nil, fmt.Errorf("transport: create net %s: %w", ip, err)
	}
	if err := v.router.AddNet(nw); err != nil {
		return nil, fmt.Errorf("transport: attach %s: %w", ip, err)
	}
	return &UDPFactory{
		ListenAddr:    net.JoinHostPort(ip, strconv.Itoa(port)),
		Net:           nw,
		LoggerFactory: v.log,
	}, nil
}

// Close stops the router.
func (v *VirtualNetwork) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()
	return v.router.Stop()
}
