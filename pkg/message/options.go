package message

import (
	"strings"
	"time"
)

// Options is an ordered multiset of options, sorted ascending by number.
// Options with equal numbers keep their insertion order.
type Options struct {
	list []Option
}

// NewOptions builds an ordered list, inserting each option in order.
func NewOptions(opts ...Option) (Options, error) {
	var o Options
	for _, opt := range opts {
		if err := o.InsertInOrder(opt); err != nil {
			return Options{}, err
		}
	}
	return o, nil
}

// Len returns the number of options.
func (o *Options) Len() int { return len(o.list) }

// All returns the options in wire order. The slice must not be modified.
func (o *Options) All() []Option { return o.list }

// Append adds opt at the end. It is the fast path for callers that emit
// options in order, and fails with ErrOptionOrder otherwise.
func (o *Options) Append(opt Option) error {
	if n := len(o.list); n > 0 && opt.Number < o.list[n-1].Number {
		return ErrOptionOrder
	}
	o.list = append(o.list, opt)
	return nil
}

// InsertInOrder places opt at its sorted position, after any options with
// the same number. Re-inserting an identical non-repeatable option is a
// no-op; a different value for it is ErrDuplicateOption.
func (o *Options) InsertInOrder(opt Option) error {
	def := LookupOption(opt.Number)
	i := 0
	for ; i < len(o.list); i++ {
		cur := o.list[i]
		if opt.Number < cur.Number {
			break
		}
		if opt.Number != cur.Number {
			continue
		}
		if !def.Repeatable {
			if cur.Equal(opt) {
				return nil
			}
			return ErrDuplicateOption
		}
	}
	o.list = append(o.list, Option{})
	copy(o.list[i+1:], o.list[i:])
	o.list[i] = opt
	return nil
}

// Merge inserts every option of other.
func (o *Options) Merge(other Options) error {
	for _, opt := range other.list {
		if err := o.InsertInOrder(opt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the first option with number n.
func (o *Options) Get(n OptionNumber) (Option, bool) {
	for _, opt := range o.list {
		if opt.Number == n {
			return opt, true
		}
		if opt.Number > n {
			break
		}
	}
	return Option{}, false
}

// GetAll returns every option with number n.
func (o *Options) GetAll(n OptionNumber) []Option {
	var out []Option
	for _, opt := range o.list {
		if opt.Number == n {
			out = append(out, opt)
		}
	}
	return out
}

// Has reports whether an option with number n is present.
func (o *Options) Has(n OptionNumber) bool {
	_, ok := o.Get(n)
	return ok
}

// Remove deletes every option with number n.
func (o *Options) Remove(n OptionNumber) {
	out := o.list[:0]
	for _, opt := range o.list {
		if opt.Number != n {
			out = append(out, opt)
		}
	}
	o.list = out
}

// Clone returns a deep copy.
func (o *Options) Clone() Options {
	if len(o.list) == 0 {
		return Options{}
	}
	out := make([]Option, len(o.list))
	for i, opt := range o.list {
		out[i] = opt.Clone()
	}
	return Options{list: out}
}

// Equal reports whether both lists hold the same options in the same order.
func (o *Options) Equal(other *Options) bool {
	if len(o.list) != len(other.list) {
		return false
	}
	for i := range o.list {
		if !o.list[i].Equal(other.list[i]) {
			return false
		}
	}
	return true
}

// Path joins Uri-Path segments with "/".
func (o *Options) Path() string {
	var segments []string
	for _, opt := range o.GetAll(URIPath) {
		segments = append(segments, opt.StringValue())
	}
	return strings.Join(segments, "/")
}

// Queries returns the Uri-Query values in order.
func (o *Options) Queries() []string {
	var out []string
	for _, opt := range o.GetAll(URIQuery) {
		out = append(out, opt.StringValue())
	}
	return out
}

// ETag returns the first ETag option.
func (o *Options) ETag() (Option, bool) {
	return o.Get(ETag)
}

// MaxAge returns Max-Age as a duration, DefaultMaxAge when absent.
func (o *Options) MaxAge() time.Duration {
	if opt, ok := o.Get(MaxAge); ok {
		return time.Duration(opt.Uint()) * time.Second
	}
	return DefaultMaxAge
}

// ContentFormat returns the Content-Format option value.
func (o *Options) ContentFormat() (ContentFormat, bool) {
	opt, ok := o.Get(ContentFormatOption)
	return ContentFormat(opt.Uint()), ok
}

// Accept returns the Accept option value.
func (o *Options) Accept() (ContentFormat, bool) {
	opt, ok := o.Get(Accept)
	return ContentFormat(opt.Uint()), ok
}

// ProxyURI returns the Proxy-Uri option value.
func (o *Options) ProxyURI() (string, bool) {
	opt, ok := o.Get(ProxyURI)
	return opt.StringValue(), ok
}

// URIHost returns the Uri-Host option value.
func (o *Options) URIHost() (string, bool) {
	opt, ok := o.Get(URIHost)
	return opt.StringValue(), ok
}

// URIPort returns the Uri-Port option value.
func (o *Options) URIPort() (uint16, bool) {
	opt, ok := o.Get(URIPort)
	return uint16(opt.Uint()), ok
}

// SafeToForward returns the options a proxy may forward without
// understanding them.
func (o *Options) SafeToForward() []Option {
	var out []Option
	for _, opt := range o.list {
		if opt.Number.IsSafeToForward() {
			out = append(out, opt)
		}
	}
	return out
}

// String formats the list for logs.
func (o *Options) String() string {
	parts := make([]string, len(o.list))
	for i, opt := range o.list {
		parts[i] = opt.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
