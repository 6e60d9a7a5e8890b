// Package uri converts between coap:// URIs, request options and
// endpoints (RFC 7252 Section 6).
package uri

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/transport"
)

// Schemes.
const (
	SchemeCoAP  = "coap"
	SchemeCoAPS = "coaps"
)

// Errors.
var (
	ErrScheme     = errors.New("uri: unsupported scheme")
	ErrHost       = errors.New("uri: missing host")
	ErrPort       = errors.New("uri: invalid port")
	ErrFragment   = errors.New("uri: fragments are not allowed")
	ErrNoEndpoint = errors.New("uri: no destination")
)

// URI is a parsed coap or coaps URI.
type URI struct {
	Scheme  string
	Host    string
	Port    int
	Path    []string
	Queries []string
}

// Parse parses raw, which must be absolute and use the coap or coaps
// scheme. The port defaults per scheme.
func Parse(raw string) (*URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("uri: %w", err)
	}
	out := &URI{Scheme: strings.ToLower(u.Scheme)}
	switch out.Scheme {
	case SchemeCoAP:
		out.Port = transport.DefaultPort
	case SchemeCoAPS:
		out.Port = transport.DefaultSecurePort
	default:
		return nil, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	if u.Fragment != "" {
		return nil, ErrFragment
	}
	out.Host = u.Hostname()
	if out.Host == "" {
		return nil, ErrHost
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 0xFFFF {
			return nil, fmt.Errorf("%w: %q", ErrPort, p)
		}
		out.Port = port
	}
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}
		unescaped, err := url.PathUnescape(seg)
		if err != nil {
			return nil, fmt.Errorf("uri: %w", err)
		}
		out.Path = append(out.Path, unescaped)
	}
	if u.RawQuery != "" {
		for _, q := range strings.Split(u.RawQuery, "&") {
			unescaped, err := url.QueryUnescape(q)
			if err != nil {
				return nil, fmt.Errorf("uri: %w", err)
			}
			out.Queries = append(out.Queries, unescaped)
		}
	}
	return out, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) *URI {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Secure reports the coaps scheme.
func (u *URI) Secure() bool { return u.Scheme == SchemeCoAPS }

// PathString joins the path segments with "/".
func (u *URI) PathString() string { return strings.Join(u.Path, "/") }

// Endpoint returns host:port.
func (u *URI) Endpoint() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// Resource identifies the target resource without scheme or query, as
// "host:port/path".
func (u *URI) Resource() string {
	return u.Endpoint() + "/" + u.PathString()
}

// Resolve resolves the endpoint to a UDP address.
func (u *URI) Resolve() (*net.UDPAddr, error) {
	return resolve(u.Host, u.Port)
}

// String formats the URI.
func (u *URI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Endpoint())
	for _, seg := range u.Path {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if len(u.Queries) > 0 {
		b.WriteByte('?')
		for i, q := range u.Queries {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(q))
		}
	}
	return b.String()
}

// Options returns the request options addressing u through destination,
// the endpoint the request is sent to. Uri-Host is emitted when the host
// is not destination's IP, Uri-Port when the port is neither destination's
// port nor a default port. Uri-Path and Uri-Query follow.
func (u *URI) Options(destination net.Addr) (message.Options, error) {
	var opts message.Options

	var dstIP net.IP
	dstPort := -1
	if ua, ok := destination.(*net.UDPAddr); ok {
		dstIP, dstPort = ua.IP, ua.Port
	}
	if ip := net.ParseIP(u.Host); ip == nil || !ip.Equal(dstIP) {
		if err := opts.Append(message.NewStringOption(message.URIHost, u.Host)); err != nil {
			return message.Options{}, err
		}
	}
	if u.Port != dstPort && u.Port != transport.DefaultPort && u.Port != transport.DefaultSecurePort {
		if err := opts.Append(message.NewUintOption(message.URIPort, uint32(u.Port))); err != nil {
			return message.Options{}, err
		}
	}
	for _, seg := range u.Path {
		if err := opts.Append(message.NewStringOption(message.URIPath, seg)); err != nil {
			return message.Options{}, err
		}
	}
	for _, q := range u.Queries {
		if err := opts.Append(message.NewStringOption(message.URIQuery, q)); err != nil {
			return message.Options{}, err
		}
	}
	return opts, nil
}

// EndpointFromProxyURI returns the endpoint named by a Proxy-Uri value.
func EndpointFromProxyURI(proxyURI string) (*net.UDPAddr, error) {
	u, err := Parse(proxyURI)
	if err != nil {
		return nil, err
	}
	return u.Resolve()
}

// ComputeDestination returns where a message with opts should be
// delivered. Proxy-Uri takes precedence; otherwise Uri-Host and Uri-Port
// override the host and port of def. Without any of them def is returned.
func ComputeDestination(opts *message.Options, def net.Addr) (net.Addr, error) {
	if proxyURI, ok := opts.ProxyURI(); ok {
		return EndpointFromProxyURI(proxyURI)
	}

	host, hasHost := opts.URIHost()
	port, hasPort := opts.URIPort()
	if !hasHost && !hasPort {
		if def == nil {
			return nil, ErrNoEndpoint
		}
		return def, nil
	}

	var defIP net.IP
	defPort := transport.DefaultPort
	if ua, ok := def.(*net.UDPAddr); ok {
		defIP, defPort = ua.IP, ua.Port
	}
	if !hasPort {
		port = uint16(defPort)
	}
	if hasHost {
		return resolve(host, int(port))
	}
	if defIP == nil {
		return nil, ErrNoEndpoint
	}
	return &net.UDPAddr{IP: defIP, Port: int(port)}, nil
}

func resolve(host string, port int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
}
