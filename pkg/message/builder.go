package message

import (
	"strings"
)

// OptionMode selects which accumulated options Build emits.
type OptionMode uint8

const (
	// EmitAll emits persistent and per-message options.
	EmitAll OptionMode = iota
	// EmitNone emits no options.
	EmitNone
	// EmitETagOnly emits only ETag options, as for a 2.03 Valid response.
	EmitETagOnly
)

// String returns the mode name.
func (m OptionMode) String() string {
	switch m {
	case EmitAll:
		return "All"
	case EmitNone:
		return "None"
	case EmitETagOnly:
		return "ETagOnly"
	default:
		return "Unknown"
	}
}

// Builder accumulates the parts of an outgoing message.
//
// A Builder is not safe for concurrent use. Builders created with Clone
// share the ID generator and token source of their parent, which are.
type Builder struct {
	ids    *IDGenerator
	tokens *TokenSource

	header     Header
	token      []byte
	options    Options
	persistent Options
	payload    []byte
	mode       OptionMode
	err        error
}

// NewBuilder creates a builder drawing message IDs and tokens from the
// given sources.
func NewBuilder(ids *IDGenerator, tokens *TokenSource) *Builder {
	if ids == nil {
		ids = NewIDGenerator(DefaultUnique)
	}
	if tokens == nil {
		tokens = NewTokenSource(DefaultUnique, DefaultTokenLength)
	}
	b := &Builder{ids: ids, tokens: tokens}
	b.Reset()
	return b
}

// Clone returns a builder sharing the sources, persistent options and
// current per-message options of b.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		ids:        b.ids,
		tokens:     b.tokens,
		header:     b.header,
		token:      append([]byte(nil), b.token...),
		options:    b.options.Clone(),
		persistent: b.persistent.Clone(),
		payload:    b.payload,
		mode:       b.mode,
		err:        b.err,
	}
	return c
}

// IDs returns the shared message ID generator.
func (b *Builder) IDs() *IDGenerator { return b.ids }

// WithHeader replaces the whole header.
func (b *Builder) WithHeader(h Header) *Builder {
	b.header = h
	return b
}

// WithType sets the message type.
func (b *Builder) WithType(t Type) *Builder {
	b.header.Type = t
	return b
}

// WithCode sets the message code.
func (b *Builder) WithCode(c Code) *Builder {
	b.header.Code = c
	return b
}

// WithMessageID sets an explicit message ID.
func (b *Builder) WithMessageID(id uint16) *Builder {
	b.header.MessageID = id
	return b
}

// WithNewMessageID draws the next ID from the generator.
func (b *Builder) WithNewMessageID() *Builder {
	b.header.MessageID = b.ids.Next()
	return b
}

// WithToken sets the token. Tokens longer than 8 bytes fail at Build.
func (b *Builder) WithToken(token []byte) *Builder {
	b.token = append([]byte(nil), token...)
	return b
}

// WithNewToken draws a fresh token from the token source.
func (b *Builder) WithNewToken() *Builder {
	b.token = b.tokens.Next()
	return b
}

// WithOption inserts opt into the per-message options in order.
func (b *Builder) WithOption(opt Option) *Builder {
	if err := b.options.InsertInOrder(opt); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// WithOptions replaces the per-message options.
func (b *Builder) WithOptions(opts Options) *Builder {
	b.options = opts.Clone()
	return b
}

// WithPersistentOptions sets options emitted by every Build until replaced.
// Reset keeps them.
func (b *Builder) WithPersistentOptions(opts Options) *Builder {
	b.persistent = opts.Clone()
	return b
}

// PersistentOptions returns a copy of the persistent options.
func (b *Builder) PersistentOptions() Options { return b.persistent.Clone() }

// WithPath adds one Uri-Path option per non-empty segment of path.
func (b *Builder) WithPath(path string) *Builder {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			b.WithOption(NewStringOption(URIPath, seg))
		}
	}
	return b
}

// WithQuery adds one Uri-Query option per '&'-separated item.
func (b *Builder) WithQuery(query string) *Builder {
	for _, q := range strings.Split(query, "&") {
		if q != "" {
			b.WithOption(NewStringOption(URIQuery, q))
		}
	}
	return b
}

// WithETag adds an ETag option.
func (b *Builder) WithETag(etag []byte) *Builder {
	return b.WithOption(NewOpaqueOption(ETag, etag))
}

// WithContentFormat adds a Content-Format option.
func (b *Builder) WithContentFormat(f ContentFormat) *Builder {
	return b.WithOption(NewUintOption(ContentFormatOption, uint32(f)))
}

// WithMaxAge adds a Max-Age option in seconds.
func (b *Builder) WithMaxAge(seconds uint32) *Builder {
	return b.WithOption(NewUintOption(MaxAge, seconds))
}

// WithPayload sets the payload.
func (b *Builder) WithPayload(payload []byte) *Builder {
	b.payload = payload
	return b
}

// WithStringPayload sets a UTF-8 payload.
func (b *Builder) WithStringPayload(payload string) *Builder {
	b.payload = []byte(payload)
	return b
}

// WithOptionMode selects which options Build emits.
func (b *Builder) WithOptionMode(m OptionMode) *Builder {
	b.mode = m
	return b
}

// Header returns the header as accumulated so far.
func (b *Builder) Header() Header { return b.header }

// Token returns the token as accumulated so far.
func (b *Builder) Token() []byte { return b.token }

// Options returns the per-message options as accumulated so far.
func (b *Builder) Options() *Options { return &b.options }

// Build produces an encoded, immutable message from the accumulated parts.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := &Message{
		Header:  b.header,
		Token:   append([]byte(nil), b.token...),
		Payload: append([]byte(nil), b.payload...),
	}
	m.Header.Version = ProtocolVersion
	m.Header.TokenLength = uint8(len(m.Token))
	if len(m.Payload) == 0 {
		m.Payload = nil
	}

	switch b.mode {
	case EmitAll:
		m.Options = b.persistent.Clone()
		if err := m.Options.Merge(b.options); err != nil {
			return nil, err
		}
	case EmitETagOnly:
		for _, opt := range b.options.GetAll(ETag) {
			if err := m.Options.InsertInOrder(opt.Clone()); err != nil {
				return nil, err
			}
		}
	}

	raw, err := m.Encode()
	if err != nil {
		return nil, err
	}
	m.raw = raw
	return m, nil
}

// BuildAndReset builds and then resets the per-message state.
func (b *Builder) BuildAndReset() (*Message, error) {
	m, err := b.Build()
	b.Reset()
	return m, err
}

// Reset clears the header, token, per-message options, payload and mode.
// Persistent options and the shared sources are kept.
func (b *Builder) Reset() *Builder {
	b.header = Header{Version: ProtocolVersion}
	b.token = nil
	b.options = Options{}
	b.payload = nil
	b.mode = EmitAll
	b.err = nil
	return b
}

// CreateRequest prepares a request with a new message ID and token.
func (b *Builder) CreateRequest(t Type, method Code) *Builder {
	return b.WithType(t).WithCode(method).WithNewMessageID().WithNewToken()
}

// CreateEmptyRequest prepares a CON 0.00 message with no token (a ping).
func (b *Builder) CreateEmptyRequest() *Builder {
	b.token = nil
	return b.WithType(Confirmable).WithCode(Empty).WithNewMessageID()
}

// CreateResponse copies the version and token of req.
func (b *Builder) CreateResponse(req *Message) *Builder {
	b.header.Version = req.Header.Version
	return b.WithToken(req.Token)
}

// CreatePiggybackedResponse prepares an ACK carrying code, matched to req
// by message ID and token.
func (b *Builder) CreatePiggybackedResponse(req *Message, code Code) *Builder {
	return b.CreateResponse(req).
		WithType(Acknowledgement).
		WithMessageID(req.Header.MessageID).
		WithCode(code)
}

// CreateAck prepares an empty ACK for the message with the given ID.
func (b *Builder) CreateAck(id uint16) *Builder {
	b.token = nil
	return b.WithType(Acknowledgement).WithCode(Empty).WithMessageID(id)
}

// CreateDelayedResponse prepares a separate response of the request's
// type with a new message ID and the request's token.
func (b *Builder) CreateDelayedResponse(req *Message, code Code) *Builder {
	return b.CreateResponse(req).
		WithType(req.Header.Type).
		WithCode(code).
		WithNewMessageID()
}

// CreateResetResponse prepares a RST for msg: same message ID and token,
// code 0.00.
func (b *Builder) CreateResetResponse(msg *Message) *Builder {
	return b.CreateResponse(msg).WithType(Reset).WithCode(Empty).WithMessageID(msg.Header.MessageID)
}

// CreateOriginRequest prepares the request a proxy forwards to an origin
// server for req: confirmable, same method, new message ID and token. The
// request's options are carried over except those addressing the proxy
// itself; the builder's persistent options supply the origin's Uri-Host
// and Uri-Port.
func (b *Builder) CreateOriginRequest(req *Message) *Builder {
	b.CreateRequest(Confirmable, req.Header.Code)
	for _, opt := range req.Options.All() {
		switch opt.Number {
		case ProxyURI, ProxyScheme, URIHost, URIPort:
			continue
		}
		b.WithOption(opt.Clone())
	}
	return b.WithPayload(req.Payload)
}
