package transport

import (
	"net"
	"strconv"
)

// DefaultPort is the CoAP UDP port (RFC 7252 Section 6.1).
const DefaultPort = 5683

// DefaultSecurePort is the coaps port (RFC 7252 Section 6.2).
const DefaultSecurePort = 5684

// SameAddr reports whether a and b name the same endpoint.
func SameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}
	return a.Network() == b.Network() && a.String() == b.String()
}

// AddrKey returns a map key for addr.
func AddrKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if ua, ok := addr.(*net.UDPAddr); ok {
		return net.JoinHostPort(ua.IP.String(), strconv.Itoa(ua.Port))
	}
	return addr.Network() + "/" + addr.String()
}

// ResolveUDPAddr resolves host:port, defaulting the port to DefaultPort.
func ResolveUDPAddr(addr string) (*net.UDPAddr, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	return net.ResolveUDPAddr("udp", addr)
}
