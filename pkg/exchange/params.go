package exchange

import (
	"fmt"
	"time"
)

// Default transmission parameters from RFC 7252 Section 4.8.
const (
	DefaultAckTimeout      = 2 * time.Second
	DefaultAckRandomFactor = 1.5
	DefaultMaxRetransmit   = 4
	DefaultNStart          = 1
	DefaultLeisure         = 5 * time.Second
	DefaultProbingRate     = 1 // bytes per second
	DefaultMaxLatency      = 100 * time.Second

	// DefaultTokenLength is the token size used for new requests.
	DefaultTokenLength = 4
)

// NoRetransmit as MaxRetransmit disables retransmission. A zero
// MaxRetransmit is replaced by DefaultMaxRetransmit.
const NoRetransmit = -1

// TransmissionParameters control retransmission and duplicate detection.
// Derived values (RFC 7252 Section 4.8.2) are computed from the base
// values on demand.
type TransmissionParameters struct {
	// AckTimeout is the minimum initial ACK timeout.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// AckRandomFactor scales AckTimeout to the upper bound of the initial
	// timeout. Must be at least 1.
	AckRandomFactor float64 `yaml:"ack_random_factor"`

	// MaxRetransmit is how many times a CON message is retransmitted.
	// Zero means DefaultMaxRetransmit; use NoRetransmit for none.
	MaxRetransmit int `yaml:"max_retransmit"`

	// NStart is the number of simultaneous outstanding interactions per peer.
	NStart int `yaml:"nstart"`

	// DefaultLeisure bounds the random delay for multicast responses.
	DefaultLeisure time.Duration `yaml:"default_leisure"`

	// ProbingRate limits bytes per second sent to an unresponsive peer.
	ProbingRate int `yaml:"probing_rate"`

	// MaxLatency is the maximum time a datagram is expected to take.
	MaxLatency time.Duration `yaml:"max_latency"`

	// ProcessingDelay is the time a node takes to turn a CON into an ACK.
	// Defaults to AckTimeout.
	ProcessingDelay time.Duration `yaml:"processing_delay"`

	// TokenLength is the size of generated tokens (0-8).
	TokenLength int `yaml:"token_length"`
}

// DefaultParameters returns the RFC 7252 defaults.
func DefaultParameters() TransmissionParameters {
	return TransmissionParameters{
		AckTimeout:      DefaultAckTimeout,
		AckRandomFactor: DefaultAckRandomFactor,
		MaxRetransmit:   DefaultMaxRetransmit,
		NStart:          DefaultNStart,
		DefaultLeisure:  DefaultLeisure,
		ProbingRate:     DefaultProbingRate,
		MaxLatency:      DefaultMaxLatency,
		ProcessingDelay: DefaultAckTimeout,
		TokenLength:     DefaultTokenLength,
	}
}

// WithDefaults returns p with zero fields replaced by defaults.
func (p TransmissionParameters) WithDefaults() TransmissionParameters {
	d := DefaultParameters()
	if p.AckTimeout == 0 {
		p.AckTimeout = d.AckTimeout
	}
	if p.AckRandomFactor == 0 {
		p.AckRandomFactor = d.AckRandomFactor
	}
	if p.MaxRetransmit == 0 {
		p.MaxRetransmit = d.MaxRetransmit
	}
	if p.NStart == 0 {
		p.NStart = d.NStart
	}
	if p.DefaultLeisure == 0 {
		p.DefaultLeisure = d.DefaultLeisure
	}
	if p.ProbingRate == 0 {
		p.ProbingRate = d.ProbingRate
	}
	if p.MaxLatency == 0 {
		p.MaxLatency = d.MaxLatency
	}
	if p.ProcessingDelay == 0 {
		p.ProcessingDelay = p.AckTimeout
	}
	if p.TokenLength == 0 {
		p.TokenLength = d.TokenLength
	}
	return p
}

// Validate rejects non-positive durations and counts.
func (p TransmissionParameters) Validate() error {
	switch {
	case p.AckTimeout <= 0:
		return fmt.Errorf("%w: ack timeout %v", ErrInvalidParameters, p.AckTimeout)
	case p.AckRandomFactor < 1:
		return fmt.Errorf("%w: ack random factor %v < 1", ErrInvalidParameters, p.AckRandomFactor)
	case p.MaxRetransmit < NoRetransmit:
		return fmt.Errorf("%w: max retransmit %d", ErrInvalidParameters, p.MaxRetransmit)
	case p.NStart <= 0:
		return fmt.Errorf("%w: nstart %d", ErrInvalidParameters, p.NStart)
	case p.MaxLatency <= 0:
		return fmt.Errorf("%w: max latency %v", ErrInvalidParameters, p.MaxLatency)
	case p.ProcessingDelay <= 0:
		return fmt.Errorf("%w: processing delay %v", ErrInvalidParameters, p.ProcessingDelay)
	case p.TokenLength < 0 || p.TokenLength > 8:
		return fmt.Errorf("%w: token length %d", ErrInvalidParameters, p.TokenLength)
	}
	return nil
}

// Retransmits returns the effective retransmission count.
func (p TransmissionParameters) Retransmits() int {
	if p.MaxRetransmit < 0 {
		return 0
	}
	return p.MaxRetransmit
}

func (p TransmissionParameters) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * p.AckRandomFactor)
}

// MaxTransmitSpan is the time from the first transmission of a CON to its
// last retransmission.
func (p TransmissionParameters) MaxTransmitSpan() time.Duration {
	return p.scaled(p.AckTimeout * time.Duration(1<<p.Retransmits()-1))
}

// MaxTransmitWait is the time from the first transmission of a CON until
// the sender gives up waiting for an ACK or RST.
func (p TransmissionParameters) MaxTransmitWait() time.Duration {
	return p.scaled(p.AckTimeout * time.Duration(1<<(p.Retransmits()+1)-1))
}

// MaxRTT is the maximum round-trip time.
func (p TransmissionParameters) MaxRTT() time.Duration {
	return 2*p.MaxLatency + p.ProcessingDelay
}

// ExchangeLifetime is how long a CON message ID stays in use.
func (p TransmissionParameters) ExchangeLifetime() time.Duration {
	return p.MaxTransmitSpan() + 2*p.MaxLatency + p.ProcessingDelay
}

// NonLifetime is how long a NON message ID stays in use.
func (p TransmissionParameters) NonLifetime() time.Duration {
	return p.MaxTransmitSpan() + p.MaxLatency
}
