// Package resource defines the providers that answer CoAP requests and the
// router the exchange layer uses to find them.
package resource

import (
	"context"

	"github.com/backkem/coap/pkg/message"
)

// Capabilities describe how a provider may be used.
type Capabilities uint8

const (
	// ReadOnly providers answer only GET; other methods get 4.05.
	ReadOnly Capabilities = 1 << iota
	// Proxy providers forward requests to an origin server.
	Proxy
)

// Has reports whether all bits of c2 are set.
func (c Capabilities) Has(c2 Capabilities) bool { return c&c2 == c2 }

// String returns a readable list of capabilities.
func (c Capabilities) String() string {
	switch c {
	case 0:
		return "None"
	case ReadOnly:
		return "ReadOnly"
	case Proxy:
		return "Proxy"
	case ReadOnly | Proxy:
		return "ReadOnly|Proxy"
	default:
		return "Unknown"
	}
}

// Response collects what a provider wants to send back besides the code.
type Response struct {
	Payload []byte
	Options message.Options
}

// AddOption adds opt in order. Conflicting non-repeatable options are
// reported as an error.
func (r *Response) AddOption(opt message.Option) error {
	return r.Options.InsertInOrder(opt)
}

// Provider answers requests for one path.
type Provider interface {
	// Capabilities returns the provider's flags.
	Capabilities() Capabilities

	// CanFetchImmediateResponse reports whether ExecuteMethod will return
	// quickly enough to piggyback the response on the ACK.
	CanFetchImmediateResponse(req *message.Message) bool

	// ExecuteMethod performs req and fills resp. The returned code becomes
	// the response code. An error is answered with 5.00.
	ExecuteMethod(ctx context.Context, req *message.Message, resp *Response) (message.Code, error)
}

// Router finds the provider for a request path.
type Router interface {
	Lookup(path string) (Provider, bool)
}

// RequestRouter is a Router that routes on the whole request, such as a
// forward proxy choosing a provider by the request's target origin. The
// exchange layer prefers Route when a router implements it.
type RequestRouter interface {
	Router
	Route(req *message.Message) (Provider, bool)
}
