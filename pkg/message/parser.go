package message

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pion/logging"
)

// ParserConfig configures a Parser.
type ParserConfig struct {
	// AcceptableFormats lists the Content-Formats this endpoint can produce.
	// Requests whose Accept option names another format are flagged
	// FlagNotAcceptable. Defaults to text/plain.
	AcceptableFormats []ContentFormat

	// LoggerFactory for creating loggers. Defaults to a no-op logger.
	LoggerFactory logging.LoggerFactory
}

// Parser decodes datagrams and classifies their options.
// It is stateless and safe for concurrent use.
type Parser struct {
	acceptable []ContentFormat
	log        logging.LeveledLogger
}

// NewParser creates a parser.
func NewParser(config ParserConfig) *Parser {
	p := &Parser{acceptable: config.AcceptableFormats}
	if len(p.acceptable) == 0 {
		p.acceptable = []ContentFormat{TextPlain}
	}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("coap-parser")
	} else {
		p.log = logging.NewDefaultLoggerFactory().NewLogger("coap-parser")
	}
	return p
}

// Parse decodes data.
//
// Structural failures return an error wrapping ErrMalformed; the message is
// non-nil when the header itself decoded. A structurally valid message with
// unrecognized critical options, out-of-range known options, or an
// unacceptable Accept value is returned together with ErrOptionError and
// its Flags and BadOption set.
func (p *Parser) Parse(data []byte) (*Message, error) {
	m, err := Decode(data)
	if err != nil {
		p.log.Debugf("malformed datagram (%d bytes): %v", len(data), err)
		return m, err
	}
	p.classify(m)
	if m.HasBadOptions() {
		return m, ErrOptionError
	}
	return m, nil
}

func (p *Parser) classify(m *Message) {
	var prev OptionNumber
	for i, opt := range m.Options.All() {
		def := opt.Def()
		repeated := i > 0 && opt.Number == prev && !def.Repeatable
		prev = opt.Number
		// Out-of-range lengths and repeats of non-repeatable options are
		// treated like unrecognized options.
		valid := def.ID != UnknownOptionID && !repeated &&
			len(opt.Value) >= def.MinLength && len(opt.Value) <= def.MaxLength
		if !valid {
			if opt.Number.IsCritical() {
				m.Flags |= FlagBadOption
				if m.BadOption == nil {
					bad := opt
					m.BadOption = &bad
				}
				p.log.Debugf("bad critical option %s in mid=%d", opt.Number, m.Header.MessageID)
			} else {
				m.Flags |= FlagIgnoredOption
				p.log.Tracef("ignoring elective option %s in mid=%d", opt.Number, m.Header.MessageID)
			}
			continue
		}
		if opt.Number == Accept && m.IsRequest() && !p.IsAcceptable(ContentFormat(opt.Uint())) {
			m.Flags |= FlagNotAcceptable
		}
	}
}

// IsAcceptable reports whether f is one of the configured formats.
func (p *Parser) IsAcceptable(f ContentFormat) bool {
	return slices.Contains(p.acceptable, f)
}

// Diagnostic returns the diagnostic payload for a message rejected
// because of its options.
func (m *Message) Diagnostic() string {
	switch {
	case m.BadOption != nil:
		return fmt.Sprintf("bad option %d (%s)", uint16(m.BadOption.Number), m.BadOption.Number)
	case m.Flags.Has(FlagNotAcceptable):
		f, _ := m.Options.Accept()
		return fmt.Sprintf("not acceptable: %s", f)
	default:
		return ""
	}
}

// IsOptionError reports an error returned by Parse for a message that is
// structurally valid but carries bad options.
func IsOptionError(err error) bool { return errors.Is(err, ErrOptionError) }

// IsMalformed reports a structural decode error.
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformed) }
