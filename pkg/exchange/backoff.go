package exchange

import (
	"math/rand/v2"
	"time"
)

// RandomSource jitters the initial ACK timeout. Float64 is in [0, 1).
type RandomSource interface {
	Float64() float64
}

// RandomFunc adapts a function to RandomSource.
type RandomFunc func() float64

// Float64 implements RandomSource.
func (f RandomFunc) Float64() float64 { return f() }

// DefaultRandomSource draws from the math/rand/v2 global generator.
var DefaultRandomSource RandomSource = RandomFunc(rand.Float64)

// InitialTimeout picks the first ACK timeout of a CON message: a random
// duration between AckTimeout and AckTimeout * AckRandomFactor.
func (p TransmissionParameters) InitialTimeout(random RandomSource) time.Duration {
	if random == nil {
		random = DefaultRandomSource
	}
	spread := float64(p.AckTimeout) * (p.AckRandomFactor - 1)
	return p.AckTimeout + time.Duration(random.Float64()*spread)
}

// Retransmission tracks the backoff of one confirmable message.
//
// The timeout starts at InitialTimeout and doubles on every retry
// (RFC 7252 Section 4.2); after MaxRetransmit retries ShouldRetry
// reports false.
type Retransmission struct {
	// Timeout is the current wait before the next retry.
	Timeout time.Duration

	// Remaining is the number of retransmissions still allowed.
	Remaining int

	// Attempts counts retransmissions so far.
	Attempts int
}

// NewRetransmission starts backoff tracking with a jittered initial timeout.
func NewRetransmission(p TransmissionParameters, random RandomSource) *Retransmission {
	return &Retransmission{
		Timeout:   p.InitialTimeout(random),
		Remaining: p.Retransmits(),
	}
}

// ShouldRetry consumes one retry and doubles the timeout. It reports false
// once all retries are used.
func (r *Retransmission) ShouldRetry() bool {
	if r.Remaining <= 0 {
		return false
	}
	r.Remaining--
	r.Attempts++
	r.Timeout *= 2
	return true
}
