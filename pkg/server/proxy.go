package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/cache"
	"github.com/backkem/coap/pkg/client"
	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/uri"
)

// ProxyConfig configures a ProxyServer.
type ProxyConfig struct {
	Config

	// CacheSizeThreshold is the total payload size the cache keeps.
	// Defaults to cache.DefaultSizeThreshold.
	CacheSizeThreshold int

	// Now is the cache clock. Defaults to time.Now.
	Now func() time.Time

	// Store, if set, is loaded into the cache on Start and saved on Stop.
	// The proxy does not close it.
	Store *cache.Store
}

// ProxyServer is a forward proxy with a shared representation cache.
// It also serves local providers added with AddProvider.
type ProxyServer struct {
	*Server

	cache   *cache.Cache
	client  *client.Client
	proxies *resource.Registry
	store   *cache.Store

	mu      sync.Mutex
	origins map[string]*ProxyProvider
}

// NewProxy creates a stopped proxy server.
//
// Requests to origins are sent by a client sharing the proxy's socket,
// with half the proxy's initial timeout and retransmission budget so an
// origin timeout is reported before the requester gives up.
func NewProxy(config ProxyConfig) (*ProxyServer, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	owns := false
	if config.Messaging == nil {
		if config.ChannelFactory == nil {
			return nil, ErrNoChannelFactory
		}
		m, err := messaging.New(messaging.Config{
			ChannelFactory: config.ChannelFactory,
			Parser:         config.Parser,
			LoggerFactory:  config.LoggerFactory,
		})
		if err != nil {
			return nil, err
		}
		config.Messaging = m
		owns = true
	}

	params := config.Params.WithDefaults()
	originParams := params
	originParams.AckTimeout = params.AckTimeout/2 + time.Millisecond
	if n := params.Retransmits(); n > 0 {
		originParams.MaxRetransmit = n/2 + 1
	}

	c, err := client.New(client.Config{
		Messaging:      config.Messaging,
		Params:         originParams,
		Random:         config.Random,
		ResetUntracked: true,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	// The client sees origin responses before the exchange manager.
	if err := c.Register(); err != nil {
		return nil, err
	}

	local := resource.NewRegistry()
	proxies := resource.NewRegistry()
	router := &proxyRouter{local: local, proxies: proxies, self: config.Messaging.LocalAddr}

	s, err := newServer(config.Config, local, router)
	if err != nil {
		return nil, err
	}
	s.ownsMessaging = owns
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("coap-proxy")
	}

	return &ProxyServer{
		Server: s,
		cache: cache.New(cache.Config{
			SizeThreshold: config.CacheSizeThreshold,
			Now:           config.Now,
			LoggerFactory: config.LoggerFactory,
		}),
		client:  c,
		proxies: proxies,
		store:   config.Store,
		origins: make(map[string]*ProxyProvider),
	}, nil
}

// AddProxy makes the proxy serve origin, a coap URI naming one resource
// on an origin server, and returns its provider. Adding the same origin
// twice returns the existing provider.
func (s *ProxyServer) AddProxy(origin *uri.URI, readOnly bool) (*ProxyProvider, error) {
	if origin == nil {
		return nil, ErrNoOrigin
	}
	dst, err := origin.Resolve()
	if err != nil {
		return nil, fmt.Errorf("server: resolve origin %s: %w", origin, err)
	}

	key := origin.Resource()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.origins[key]; ok {
		return p, nil
	}

	caps := resource.Proxy
	if readOnly {
		caps |= resource.ReadOnly
	}
	p := newProxyProvider(s, origin, dst, caps)
	s.origins[key] = p
	s.proxies.Add(key, p)
	if s.log != nil {
		s.log.Debugf("proxying %s", origin)
	}
	return p, nil
}

// RemoveProxy stops serving origin.
func (s *ProxyServer) RemoveProxy(origin *uri.URI) {
	key := origin.Resource()
	s.mu.Lock()
	delete(s.origins, key)
	s.mu.Unlock()
	s.proxies.Remove(key)
}

// Origins returns the proxied origin resources.
func (s *ProxyServer) Origins() []string { return s.proxies.Paths() }

// Start loads the store, if any, and starts serving.
func (s *ProxyServer) Start() error {
	if s.store != nil {
		n, err := s.store.Load(s.cache)
		if err != nil {
			return fmt.Errorf("server: load cache: %w", err)
		}
		if s.log != nil {
			s.log.Infof("restored %d cached representations", n)
		}
	}
	return s.Server.Start()
}

// Stop stops serving and saves the cache to the store, if any.
func (s *ProxyServer) Stop() error {
	err := s.Server.Stop()
	if errors.Is(err, ErrStopped) {
		return err
	}
	if cerr := s.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.store != nil {
		n, serr := s.store.Save(s.cache)
		switch {
		case serr != nil && err == nil:
			err = fmt.Errorf("server: save cache: %w", serr)
		case serr == nil && s.log != nil:
			s.log.Infof("saved %d cached representations", n)
		}
	}
	return err
}

// TryGetCachedValue looks up a fresh representation of origin for req and
// counts the hit or miss.
func (s *ProxyServer) TryGetCachedValue(req *message.Message, origin *uri.URI) (*cache.Entry, bool) {
	entry, ok := s.cache.TryGetValue(req, origin.Resource())
	s.countLookup(req, ok)
	return entry, ok
}

func (s *ProxyServer) countLookup(req *message.Message, hit bool) {
	if hit {
		s.stats.CacheHits.Add(1)
		if s.log != nil {
			s.log.Debugf("cache hit for %q", req.Options.Path())
		}
		return
	}
	s.stats.CacheMisses.Add(1)
	if s.log != nil {
		s.log.Debugf("cache miss for %q", req.Options.Path())
	}
}

// RefreshCache stores resp, received from origin for req.
func (s *ProxyServer) RefreshCache(req, resp *message.Message, origin *uri.URI) *cache.Entry {
	return s.cache.Refresh(req, resp, origin.Resource())
}

// EvictCachedValue removes the representation of origin matching req.
func (s *ProxyServer) EvictCachedValue(req *message.Message, origin *uri.URI) bool {
	return s.cache.Evict(req, origin.Resource())
}

// EmptyCache removes every cached representation.
func (s *ProxyServer) EmptyCache() { s.cache.Clear() }

// Cache returns the shared cache.
func (s *ProxyServer) Cache() *cache.Cache { return s.cache }

// Client returns the client used to reach origin servers.
func (s *ProxyServer) Client() *client.Client { return s.client }

// OriginParams returns the transmission parameters used toward origins.
func (s *ProxyServer) OriginParams() exchange.TransmissionParameters { return s.client.Params() }
