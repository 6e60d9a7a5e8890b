// Package discovery advertises and browses CoAP endpoints with DNS-SD over
// mDNS.
//
// Origin servers register as "_coap._udp" instances. Proxies register the
// same service with the "_proxy" subtype so clients can browse for them
// alone. TXT records carry the endpoint's name and resource paths.
package discovery

// ServiceType identifies the role an endpoint advertises.
type ServiceType int

const (
	ServiceTypeUnknown ServiceType = iota
	// ServiceTypeServer is an origin server.
	ServiceTypeServer
	// ServiceTypeProxy is a forward proxy.
	ServiceTypeProxy
)

// DNS-SD names.
const (
	ServiceCoAP   = "_coap._udp"
	SubtypeProxy  = "_proxy"
	DefaultDomain = "local."
)

// String returns the role name.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeServer:
		return "Server"
	case ServiceTypeProxy:
		return "Proxy"
	default:
		return "Unknown"
	}
}

// IsValid reports a known role.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypeServer || s == ServiceTypeProxy
}

// ServiceString returns the browse string for the role. Proxies are found
// through their subtype.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypeServer:
		return ServiceCoAP
	case ServiceTypeProxy:
		return SubtypeProxy + "._sub." + ServiceCoAP
	default:
		return ""
	}
}

// registerString returns the service string passed to zeroconf.Register,
// which takes subtypes as a comma-separated suffix.
func (s ServiceType) registerString() string {
	if s == ServiceTypeProxy {
		return ServiceCoAP + "," + SubtypeProxy
	}
	return ServiceCoAP
}
