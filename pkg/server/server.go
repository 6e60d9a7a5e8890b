// Package server runs CoAP origin servers and forward proxies.
//
// A Server wires a provider registry to an exchange.Manager on its own
// messaging.Messaging instance. A ProxyServer adds a shared representation
// cache and proxy providers that fetch from origin servers on a miss.
package server

import (
	"net"
	"sync"

	"github.com/backkem/coap/pkg/exchange"
	"github.com/backkem/coap/pkg/message"
	"github.com/backkem/coap/pkg/messaging"
	"github.com/backkem/coap/pkg/resource"
	"github.com/backkem/coap/pkg/stats"
	"github.com/backkem/coap/pkg/transport"
	"github.com/pion/logging"
)

// Config configures a Server.
type Config struct {
	// ChannelFactory opens the server's socket. Required unless Messaging
	// is set.
	ChannelFactory transport.ChannelFactory

	// Messaging is an existing instance to serve on. The server then
	// neither starts nor stops it.
	Messaging *messaging.Messaging

	// Parser decodes incoming datagrams when the server creates its own
	// messaging instance.
	Parser *message.Parser

	// Params are the transmission parameters. Zero fields get RFC 7252
	// defaults.
	Params exchange.TransmissionParameters

	// Random jitters retransmission timeouts.
	Random exchange.RandomSource

	// Stats receives the server's counters. A private instance is used
	// when nil.
	Stats *stats.Statistics

	// MaxWorkers bounds concurrent delayed provider executions.
	MaxWorkers int64

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server answers requests with registered providers.
type Server struct {
	registry  *resource.Registry
	messaging *messaging.Messaging
	manager   *exchange.Manager
	stats     *stats.Statistics
	log       logging.LeveledLogger

	ownsMessaging bool

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a stopped server.
func New(config Config) (*Server, error) {
	registry := resource.NewRegistry()
	return newServer(config, registry, registry)
}

// newServer builds a server routing with router.
func newServer(config Config, registry *resource.Registry, router resource.Router) (*Server, error) {
	if config.Stats == nil {
		config.Stats = stats.New()
	}

	m := config.Messaging
	owns := false
	if m == nil {
		if config.ChannelFactory == nil {
			return nil, ErrNoChannelFactory
		}
		var err error
		m, err = messaging.New(messaging.Config{
			ChannelFactory: config.ChannelFactory,
			Parser:         config.Parser,
			LoggerFactory:  config.LoggerFactory,
		})
		if err != nil {
			return nil, err
		}
		owns = true
	}

	manager, err := exchange.NewManager(exchange.ManagerConfig{
		Router:        router,
		Params:        config.Params,
		Random:        config.Random,
		Stats:         config.Stats,
		MaxWorkers:    config.MaxWorkers,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	m.Register(manager)

	s := &Server{
		registry:      registry,
		messaging:     m,
		manager:       manager,
		stats:         config.Stats,
		ownsMessaging: owns,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("coap-server")
	}
	return s, nil
}

// AddProvider registers p under path, replacing any previous provider.
func (s *Server) AddProvider(path string, p resource.Provider) {
	s.registry.Add(path, p)
	if s.log != nil {
		s.log.Debugf("added provider %q (%s)", resource.NormalizePath(path), p.Capabilities())
	}
}

// RemoveProvider unregisters path.
func (s *Server) RemoveProvider(path string) { s.registry.Remove(path) }

// QueryProvider returns the provider for path. Any query part is ignored.
func (s *Server) QueryProvider(path string) (resource.Provider, bool) {
	return s.registry.Lookup(path)
}

// Paths returns the registered provider paths.
func (s *Server) Paths() []string { return s.registry.Paths() }

// Start starts serving. A stopped server cannot be restarted.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	if s.ownsMessaging {
		if err := s.messaging.Start(); err != nil {
			return err
		}
	}
	s.started = true
	if s.log != nil {
		s.log.Infof("serving %d providers on %v", len(s.registry.Paths()), s.messaging.LocalAddr())
	}
	return nil
}

// Stop stops serving, cancels running providers and releases the socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.messaging.Unregister(s.manager)
	var err error
	if started && s.ownsMessaging {
		err = s.messaging.Stop()
	}
	if cerr := s.manager.Close(); err == nil {
		err = cerr
	}
	return err
}

// LocalAddr returns the bound address, nil before Start.
func (s *Server) LocalAddr() net.Addr { return s.messaging.LocalAddr() }

// Messaging returns the messaging instance the server runs on.
func (s *Server) Messaging() *messaging.Messaging { return s.messaging }

// Manager returns the exchange manager.
func (s *Server) Manager() *exchange.Manager { return s.manager }

// Stats returns the server's counters.
func (s *Server) Stats() *stats.Statistics { return s.stats }
