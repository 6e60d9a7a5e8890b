package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/backkem/coap/pkg/cache"
	"github.com/backkem/coap/pkg/client"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/uri"
)

// ProxyProvider serves one origin resource through the proxy.
//
// GET requests with a fresh cached representation are answered on the ACK
// with 2.03 Valid and the stored ETag. Everything else is forwarded to the
// origin as a delayed response.
type ProxyProvider struct {
	server      *ProxyServer
	origin      *uri.URI
	destination *net.UDPAddr
	caps        resource.Capabilities

	mu sync.Mutex
	// approved pins the entry found by CanFetchImmediateResponse for the
	// ExecuteMethod call that follows it.
	approved map[*message.Message]*cache.Entry
}

func newProxyProvider(s *ProxyServer, origin *uri.URI, dst *net.UDPAddr, caps resource.Capabilities) *ProxyProvider {
	return &ProxyProvider{
		server:      s,
		origin:      origin,
		destination: dst,
		caps:        caps,
		approved:    make(map[*message.Message]*cache.Entry),
	}
}

// Origin returns the proxied resource.
func (p *ProxyProvider) Origin() *uri.URI { return p.origin }

// Destination returns the origin server's endpoint.
func (p *ProxyProvider) Destination() net.Addr { return p.destination }

// Capabilities implements resource.Provider.
func (p *ProxyProvider) Capabilities() resource.Capabilities { return p.caps }

// CanFetchImmediateResponse implements resource.Provider. Only GET
// requests with a fresh and relevant representation are immediate.
func (p *ProxyProvider) CanFetchImmediateResponse(req *message.Message) bool {
	if !req.IsGET() {
		return false
	}
	entry, ok := p.server.cache.TryGetValue(req, p.origin.Resource())
	if !ok {
		return false
	}
	p.mu.Lock()
	p.approved[req] = entry
	p.mu.Unlock()
	return true
}

// ExecuteMethod implements resource.Provider.
func (p *ProxyProvider) ExecuteMethod(ctx context.Context, req *message.Message, resp *resource.Response) (message.Code, error) {
	if req.IsGET() {
		if entry, ok := p.lookup(req); ok {
			p.server.countLookup(req, true)
			if len(entry.ETag) > 0 {
				if err := resp.AddOption(message.NewOpaqueOption(message.ETag, entry.ETag)); err != nil {
					return message.InternalServerError, err
				}
			}
			return message.Valid, nil
		}
	}
	p.server.countLookup(req, false)
	return p.forward(ctx, req, resp)
}

// lookup returns the entry pinned for req, or asks the cache again.
func (p *ProxyProvider) lookup(req *message.Message) (*cache.Entry, bool) {
	p.mu.Lock()
	entry, ok := p.approved[req]
	delete(p.approved, req)
	p.mu.Unlock()
	if ok {
		return entry, true
	}
	return p.server.cache.TryGetValue(req, p.origin.Resource())
}

// forward sends req to the origin and copies the origin's answer into
// resp. Successful GET responses refresh the cache; other successful
// methods invalidate it.
func (p *ProxyProvider) forward(ctx context.Context, req *message.Message, resp *resource.Response) (message.Code, error) {
	originReq, err := p.originRequest(req)
	if err != nil {
		return message.InternalServerError, err
	}

	log := p.server.log
	originResp, err := p.server.client.SendReceiveTo(ctx, originReq, p.destination)
	switch {
	case errors.Is(err, client.ErrTimeout):
		if log != nil {
			log.Warnf("origin %s timed out", p.origin)
		}
		return message.GatewayTimeout, nil
	case errors.Is(err, client.ErrReset):
		if log != nil {
			log.Warnf("origin %s reset request %d", p.origin, originReq.MessageID())
		}
		return message.BadGateway, nil
	case err != nil:
		return message.InternalServerError, err
	}

	code := originResp.Code()
	switch {
	case req.IsGET() && code.IsSuccess():
		p.server.RefreshCache(req, originResp, p.origin)
		if log != nil {
			log.Debugf("transferred %s (%d bytes) from %s", req.Options.Path(), len(originResp.Payload), p.origin)
		}
	case !req.IsGET() && code.IsSuccess():
		p.server.EvictCachedValue(req, p.origin)
	}

	resp.Options = originResp.Options.Clone()
	resp.Payload = originResp.Payload
	return code, nil
}

// originRequest builds the confirmable request forwarded for req. A
// request that named its target with Proxy-Uri gets the origin's path and
// query.
func (p *ProxyProvider) originRequest(req *message.Message) (*message.Message, error) {
	addressing, err := p.origin.Options(p.destination)
	if err != nil {
		return nil, err
	}
	var persistent message.Options
	for _, opt := range addressing.All() {
		if opt.Number == message.URIHost || opt.Number == message.URIPort {
			if err := persistent.Append(opt); err != nil {
				return nil, err
			}
		}
	}

	b := p.server.client.Builder().WithPersistentOptions(persistent).CreateOriginRequest(req)
	if !req.Options.Has(message.URIPath) {
		b.WithPath(p.origin.PathString())
		if !req.Options.Has(message.URIQuery) {
			for _, q := range p.origin.Queries {
				b.WithOption(message.NewStringOption(message.URIQuery, q))
			}
		}
	}
	return b.Build()
}

var _ resource.Provider = (*ProxyProvider)(nil)
