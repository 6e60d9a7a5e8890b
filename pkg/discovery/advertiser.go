package discovery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/backkem/coap/pkg/transport"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is a live DNS-SD registration.
type MDNSServer interface {
	// SetText replaces the TXT records without re-registering.
	SetText(txt []string)
	Shutdown()
}

// MDNSServerFactory registers DNS-SD instances. Tests inject fakes.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig configures NewAdvertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name shared by all roles. A random
	// 16-hex-digit name is used when empty.
	Instance string

	// Port is the advertised UDP port. Default transport.DefaultPort.
	Port int

	// Interfaces to announce on. All when nil.
	Interfaces []net.Interface

	// ServerFactory defaults to grandcat/zeroconf.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Advertiser announces one CoAP endpoint. Each role (plain server, proxy)
// is a separate registration under the same instance name, so browsers of
// the proxy subtype only see proxies.
type Advertiser struct {
	instance string
	port     int
	ifaces   []net.Interface
	factory  MDNSServerFactory
	log      logging.LeveledLogger

	mu     sync.Mutex
	roles  map[ServiceType]MDNSServer
	closed bool
}

// NewAdvertiser returns an advertiser with nothing published.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	instance := config.Instance
	if instance == "" {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("discovery: instance name: %w", err)
		}
		instance = strings.ToUpper(hex.EncodeToString(b[:]))
	}
	if strings.ContainsAny(instance, ".\x00") || len(instance) > MaxInstanceNameLength {
		return nil, ErrInvalidName
	}

	a := &Advertiser{
		instance: instance,
		port:     config.Port,
		ifaces:   config.Interfaces,
		factory:  config.ServerFactory,
		roles:    make(map[ServiceType]MDNSServer),
	}
	if a.port <= 0 || a.port > 0xFFFF {
		a.port = transport.DefaultPort
	}
	if a.factory == nil {
		a.factory = zeroconfServerFactory{}
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("coap-discovery")
	}
	return a, nil
}

// Instance returns the DNS-SD instance name.
func (a *Advertiser) Instance() string { return a.instance }

// Publish announces role with txt. Publishing a role that is already
// announced only replaces its TXT records.
func (a *Advertiser) Publish(role ServiceType, txt ServiceTXT) error {
	if !role.IsValid() {
		return ErrInvalidServiceType
	}
	if err := txt.Validate(); err != nil {
		return err
	}
	records := txt.Encode()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	if srv, ok := a.roles[role]; ok {
		srv.SetText(records)
		if a.log != nil {
			a.log.Debugf("updated %s TXT: %v", role, records)
		}
		return nil
	}

	srv, err := a.factory.Register(a.instance, role.registerString(), DefaultDomain, a.port, records, a.ifaces)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", role, err)
	}
	a.roles[role] = srv
	if a.log != nil {
		a.log.Infof("announcing %s as %s on port %d", a.instance, role, a.port)
	}
	return nil
}

// Withdraw stops announcing role.
func (a *Advertiser) Withdraw(role ServiceType) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	srv, ok := a.roles[role]
	if !ok {
		return ErrNotStarted
	}
	srv.Shutdown()
	delete(a.roles, role)
	return nil
}

// Roles lists the announced roles in ascending order.
func (a *Advertiser) Roles() []ServiceType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ServiceType, 0, len(a.roles))
	for r := range a.roles {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Close withdraws every role. The advertiser cannot be reused.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	for _, srv := range a.roles {
		srv.Shutdown()
	}
	a.roles = nil
	a.closed = true
	return nil
}
