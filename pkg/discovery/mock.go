package discovery

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver answers browses and lookups from a fixed table. Entries
// registered under a subtype ("_x._sub._coap._udp") are also visible under
// the base service, as on a real responder.
type MockMDNSResolver struct {
	mu      sync.RWMutex
	entries map[string]map[string]*zeroconf.ServiceEntry // service -> instance
}

// NewMockMDNSResolver returns an empty table.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{entries: make(map[string]map[string]*zeroconf.ServiceEntry)}
}

// RegisterService adds or replaces entry under service.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.entries[service]
	if byName == nil {
		byName = make(map[string]*zeroconf.ServiceEntry)
		m.entries[service] = byName
	}
	byName[entry.Instance] = entry
}

// RemoveService drops instance from service.
func (m *MockMDNSResolver) RemoveService(service, instance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[service], instance)
}

func baseService(service string) string {
	if i := strings.Index(service, "._sub."); i >= 0 {
		return service[i+len("._sub."):]
	}
	return service
}

// matching snapshots the entries visible under service, optionally
// restricted to one instance.
func (m *MockMDNSResolver) matching(service, instance string) []*zeroconf.ServiceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*zeroconf.ServiceEntry
	for registered, byName := range m.entries {
		if registered != service && baseService(registered) != service {
			continue
		}
		for name, e := range byName {
			if instance == "" || name == instance {
				out = append(out, e)
			}
		}
	}
	return out
}

func send(ctx context.Context, list []*zeroconf.ServiceEntry, entries chan<- *zeroconf.ServiceEntry) error {
	for _, e := range list {
		select {
		case entries <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	return send(ctx, m.matching(service, ""), entries)
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if instance == "" {
		return nil
	}
	return send(ctx, m.matching(service, instance), entries)
}

// MockService builds an entry for instance reachable at port on ips.
func MockService(instance string, ip net.IP, port int, txt ServiceTXT, more ...net.IP) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceCoAP,
			Domain:   DefaultDomain,
		},
		HostName: instance + "." + DefaultDomain,
		Port:     port,
		Text:     txt.Encode(),
	}
	for _, a := range append([]net.IP{ip}, more...) {
		if v4 := a.To4(); v4 != nil {
			e.AddrIPv4 = append(e.AddrIPv4, v4)
		} else if a != nil {
			e.AddrIPv6 = append(e.AddrIPv6, a)
		}
	}
	return e
}
