package exchange

import (
	"errors"
	"testing"
	"time"
)

type deterministicRandom struct {
	value float64
}

func (r *deterministicRandom) Float64() float64 {
	return r.value
}

func TestDerivedParameters(t *testing.T) {
	p := DefaultParameters()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"MaxTransmitSpan", p.MaxTransmitSpan(), 45 * time.Second},
		{"MaxTransmitWait", p.MaxTransmitWait(), 93 * time.Second},
		{"MaxRTT", p.MaxRTT(), 202 * time.Second},
		{"ExchangeLifetime", p.ExchangeLifetime(), 247 * time.Second},
		{"NonLifetime", p.NonLifetime(), 145 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParametersValidate(t *testing.T) {
	if err := DefaultParameters().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*TransmissionParameters)
	}{
		{"zero ack timeout", func(p *TransmissionParameters) { p.AckTimeout = 0 }},
		{"random factor below one", func(p *TransmissionParameters) { p.AckRandomFactor = 0.5 }},
		{"negative retransmit", func(p *TransmissionParameters) { p.MaxRetransmit = NoRetransmit - 1 }},
		{"zero nstart", func(p *TransmissionParameters) { p.NStart = 0 }},
		{"long token", func(p *TransmissionParameters) { p.TokenLength = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("Validate() = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	p := TransmissionParameters{AckTimeout: time.Second}.WithDefaults()
	if p.AckTimeout != time.Second {
		t.Errorf("AckTimeout = %v, want 1s", p.AckTimeout)
	}
	if p.ProcessingDelay != time.Second {
		t.Errorf("ProcessingDelay = %v, want AckTimeout", p.ProcessingDelay)
	}
	if p.MaxRetransmit != DefaultMaxRetransmit || p.TokenLength != DefaultTokenLength {
		t.Errorf("defaults not applied: %+v", p)
	}
}

func TestNoRetransmit(t *testing.T) {
	p := TransmissionParameters{MaxRetransmit: NoRetransmit}.WithDefaults()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.MaxRetransmit != NoRetransmit || p.Retransmits() != 0 {
		t.Errorf("MaxRetransmit = %d, Retransmits() = %d, want none", p.MaxRetransmit, p.Retransmits())
	}
	if again := p.WithDefaults(); again.MaxRetransmit != NoRetransmit {
		t.Errorf("WithDefaults() changed MaxRetransmit to %d", again.MaxRetransmit)
	}

	r := NewRetransmission(p, RandomFunc(func() float64 { return 0 }))
	if r.ShouldRetry() {
		t.Error("retry allowed with NoRetransmit")
	}
	if got, want := p.MaxTransmitWait(), p.scaled(p.AckTimeout); got != want {
		t.Errorf("MaxTransmitWait() = %v, want %v", got, want)
	}
}

func TestInitialTimeout(t *testing.T) {
	p := DefaultParameters()

	tests := []struct {
		random float64
		want   time.Duration
	}{
		{0, 2 * time.Second},
		{0.5, 2500 * time.Millisecond},
		{0.999999, 3 * time.Second},
	}
	for _, tt := range tests {
		got := p.InitialTimeout(&deterministicRandom{value: tt.random})
		if diff := got - tt.want; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("InitialTimeout(%v) = %v, want %v", tt.random, got, tt.want)
		}
	}
}

func TestRetransmissionShouldRetry(t *testing.T) {
	p := DefaultParameters()
	r := NewRetransmission(p, &deterministicRandom{value: 0})

	want := []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	for i, w := range want {
		if !r.ShouldRetry() {
			t.Fatalf("retry %d refused", i+1)
		}
		if r.Timeout != w {
			t.Errorf("timeout after retry %d = %v, want %v", i+1, r.Timeout, w)
		}
	}
	if r.ShouldRetry() {
		t.Error("retry allowed after MaxRetransmit")
	}
	if r.Attempts != p.MaxRetransmit || r.Remaining != 0 {
		t.Errorf("Attempts = %d, Remaining = %d", r.Attempts, r.Remaining)
	}
}
