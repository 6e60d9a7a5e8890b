package discovery

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/backkem/coap/pkg/uri"
	"github.com/grandcat/zeroconf"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService contains information about a discovered endpoint.
type ResolvedService struct {
	ServiceType  ServiceType
	InstanceName string
	HostName     string
	Port         int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	TXT ServiceTXT
}

// PreferredIP returns the most preferred IP address, nil if there is none.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// Addr returns the UDP address of the preferred IP.
func (r *ResolvedService) Addr() (*net.UDPAddr, error) {
	ip := r.PreferredIP()
	if ip == nil {
		return nil, ErrServiceNotFound
	}
	return &net.UDPAddr{IP: ip, Port: r.Port}, nil
}

// URI returns the URI of path on the endpoint.
func (r *ResolvedService) URI(path string) (*uri.URI, error) {
	addr, err := r.Addr()
	if err != nil {
		return nil, err
	}
	scheme := uri.SchemeCoAP
	if r.TXT.Secure {
		scheme = uri.SchemeCoAPS
	}
	return uri.Parse(scheme + "://" + addr.String() + "/" + path)
}

// MDNSResolver runs DNS-SD queries. Both methods block until ctx ends or
// the query is answered, then return without closing entries.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

// Browse blocks until ctx ends. zeroconf owns and closes the channel it
// is given, so entries are forwarded from a private one.
func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Browse(ctx, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Lookup(ctx, instance, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- *zeroconf.ServiceEntry) error {
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ResolverConfig configures NewResolver.
type ResolverConfig struct {
	// MDNSResolver defaults to grandcat/zeroconf.
	MDNSResolver MDNSResolver

	// BrowseTimeout bounds Browse and First; an earlier ctx deadline wins.
	BrowseTimeout time.Duration

	// LookupTimeout bounds Lookup the same way.
	LookupTimeout time.Duration
}

// Resolver finds CoAP endpoints announced over DNS-SD.
type Resolver struct {
	mdns          MDNSResolver
	browseTimeout time.Duration
	lookupTimeout time.Duration
}

// NewResolver returns a resolver; with no MDNSResolver configured it opens
// zeroconf multicast sockets.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	r := &Resolver{
		mdns:          config.MDNSResolver,
		browseTimeout: config.BrowseTimeout,
		lookupTimeout: config.LookupTimeout,
	}
	if r.mdns == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		r.mdns = zr
	}
	if r.browseTimeout <= 0 {
		r.browseTimeout = DefaultBrowseTimeout
	}
	if r.lookupTimeout <= 0 {
		r.lookupTimeout = DefaultLookupTimeout
	}
	return r, nil
}

type query func(ctx context.Context, out chan<- *zeroconf.ServiceEntry) error

// run executes q under timeout and streams its entries as services, each
// instance once. The stream ends when q returns or qctx is done; cancel
// stops it early.
func (r *Resolver) run(ctx context.Context, role ServiceType, timeout time.Duration, q query) (out <-chan ResolvedService, qctx context.Context, cancel context.CancelFunc) {
	qctx, cancel = context.WithTimeout(ctx, timeout)

	raw := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(raw)
		_ = q(qctx, raw)
	}()

	services := make(chan ResolvedService)
	go func() {
		defer close(services)
		defer cancel()
		seen := make(map[string]bool)
		for e := range raw {
			if e == nil || seen[e.Instance] {
				continue
			}
			seen[e.Instance] = true
			select {
			case services <- entryToResolvedService(e, role):
			case <-qctx.Done():
				for range raw {
				}
				return
			}
		}
	}()
	return services, qctx, cancel
}

// Browse streams endpoints announced in role until ctx ends or the browse
// timeout expires.
func (r *Resolver) Browse(ctx context.Context, role ServiceType) (<-chan ResolvedService, error) {
	service := role.ServiceString()
	if service == "" {
		return nil, ErrInvalidServiceType
	}
	out, _, _ := r.run(ctx, role, r.browseTimeout, func(ctx context.Context, c chan<- *zeroconf.ServiceEntry) error {
		return r.mdns.Browse(ctx, service, DefaultDomain, c)
	})
	return out, nil
}

// Lookup resolves a single instance.
func (r *Resolver) Lookup(ctx context.Context, role ServiceType, instance string) (*ResolvedService, error) {
	if !role.IsValid() {
		return nil, ErrInvalidServiceType
	}
	out, qctx, cancel := r.run(ctx, role, r.lookupTimeout, func(ctx context.Context, c chan<- *zeroconf.ServiceEntry) error {
		return r.mdns.Lookup(ctx, instance, ServiceCoAP, DefaultDomain, c)
	})
	defer cancel()

	if svc, ok := <-out; ok {
		return &svc, nil
	}
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(qctx.Err(), context.DeadlineExceeded):
		return nil, ErrTimeout
	}
	return nil, ErrServiceNotFound
}

// First returns the first endpoint in role whose TXT lists path, or any
// endpoint when path is empty.
func (r *Resolver) First(ctx context.Context, role ServiceType, path string) (*ResolvedService, error) {
	if !role.IsValid() {
		return nil, ErrInvalidServiceType
	}
	service := role.ServiceString()
	out, _, cancel := r.run(ctx, role, r.browseTimeout, func(ctx context.Context, c chan<- *zeroconf.ServiceEntry) error {
		return r.mdns.Browse(ctx, service, DefaultDomain, c)
	})
	defer cancel()

	for svc := range out {
		if path == "" || svc.serves(path) {
			return &svc, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, ErrServiceNotFound
}

func (r *ResolvedService) serves(path string) bool {
	for _, p := range r.TXT.Paths {
		if p == path {
			return true
		}
	}
	return false
}

func entryToResolvedService(entry *zeroconf.ServiceEntry, serviceType ServiceType) ResolvedService {
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return ResolvedService{
		ServiceType:  serviceType,
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(ips),
		TXT:          ParseServiceTXT(entry.Text),
	}
}
