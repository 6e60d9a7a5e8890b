package resource

import (
	"context"

	"github.com/backkem/coap/pkg/message"
)

// HandlerFunc implements one method of a Base provider.
type HandlerFunc func(ctx context.Context, req *message.Message, resp *Response) (message.Code, error)

// Base dispatches methods to optional handler funcs. Methods without a
// handler are answered with 4.05. Successful GET responses get a
// content-hash ETag unless the handler set one.
type Base struct {
	// Immediate marks the provider as answering on the ACK.
	Immediate bool
	// Caps are the provider's capabilities.
	Caps Capabilities

	Get    HandlerFunc
	Post   HandlerFunc
	Put    HandlerFunc
	Delete HandlerFunc
}

// Capabilities implements Provider.
func (b *Base) Capabilities() Capabilities { return b.Caps }

// CanFetchImmediateResponse implements Provider.
func (b *Base) CanFetchImmediateResponse(*message.Message) bool { return b.Immediate }

// ExecuteMethod implements Provider.
func (b *Base) ExecuteMethod(ctx context.Context, req *message.Message, resp *Response) (message.Code, error) {
	if req.Options.Path() == "" {
		return message.BadRequest, nil
	}

	var h HandlerFunc
	switch req.Code() {
	case message.GET:
		h = b.Get
	case message.POST:
		h = b.Post
	case message.PUT:
		h = b.Put
	case message.DELETE:
		h = b.Delete
	}
	if h == nil {
		return message.MethodNotAllowed, nil
	}

	code, err := h(ctx, req, resp)
	if err != nil {
		return message.InternalServerError, err
	}
	if req.Code() == message.GET && code.IsSuccess() && !resp.Options.Has(message.ETag) {
		if err := resp.AddOption(message.NewOpaqueOption(message.ETag, ETagFor(resp.Payload))); err != nil {
			return message.InternalServerError, err
		}
	}
	return code, nil
}

var _ Provider = (*Base)(nil)
