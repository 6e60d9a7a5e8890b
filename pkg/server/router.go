package server

import (
	"context"
	"net"
	"strconv"

	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/transport"
	"github.com/backkem/coap/pkg/uri"
)

// proxyRouter routes requests addressed to the proxy itself through the
// local registry and requests for other origins to proxy providers keyed
// by target resource.
type proxyRouter struct {
	local   *resource.Registry
	proxies *resource.Registry
	self    func() net.Addr
}

// Lookup implements resource.Router for local paths.
func (r *proxyRouter) Lookup(path string) (resource.Provider, bool) {
	return r.local.Lookup(path)
}

// Route implements resource.RequestRouter.
func (r *proxyRouter) Route(req *message.Message) (resource.Provider, bool) {
	target, proxied, err := targetOf(req, r.self())
	if err != nil {
		return unsupported, true
	}
	if !proxied {
		return r.local.Lookup(req.Options.Path())
	}
	if p, ok := r.proxies.Lookup(target); ok {
		return p, true
	}
	return unsupported, true
}

// targetOf returns the resource a request is for, as "host:port/path",
// and whether it names an origin other than self.
func targetOf(req *message.Message, self net.Addr) (string, bool, error) {
	if proxyURI, ok := req.Options.ProxyURI(); ok {
		u, err := uri.Parse(proxyURI)
		if err != nil {
			return "", true, err
		}
		return u.Resource(), true, nil
	}

	host, hasHost := req.Options.URIHost()
	port, hasPort := req.Options.URIPort()
	if !hasHost && !hasPort {
		return "", false, nil
	}

	selfHost, selfPort := "", transport.DefaultPort
	if ua, ok := self.(*net.UDPAddr); ok {
		selfHost, selfPort = ua.IP.String(), ua.Port
	}
	if !hasHost {
		host = selfHost
	}
	if !hasPort {
		port = transport.DefaultPort
	}
	if host == selfHost && int(port) == selfPort {
		return "", false, nil
	}
	endpoint := net.JoinHostPort(host, strconv.Itoa(int(port)))
	return endpoint + "/" + req.Options.Path(), true, nil
}

// unsupportedProvider answers requests for origins the proxy does not
// serve.
type unsupportedProvider struct{}

func (unsupportedProvider) Capabilities() resource.Capabilities { return resource.Proxy }

func (unsupportedProvider) CanFetchImmediateResponse(*message.Message) bool { return true }

func (unsupportedProvider) ExecuteMethod(context.Context, *message.Message, *resource.Response) (message.Code, error) {
	return message.ProxyingNotSupported, nil
}

var unsupported resource.Provider = unsupportedProvider{}

var _ resource.RequestRouter = (*proxyRouter)(nil)
