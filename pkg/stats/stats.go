// Package stats counts protocol events for clients, servers and proxies.
//
// Counters are plain atomic increments so they can be bumped from any
// goroutine without coordination. Snapshot reads them for tests and
// Collector exports them to Prometheus.
package stats

import "sync/atomic"

// Statistics holds the counters of one endpoint.
type Statistics struct {
	AcksReceived                    atomic.Uint64
	AcksSent                        atomic.Uint64
	RequestsReceived                atomic.Uint64
	RequestsSent                    atomic.Uint64
	RequestsRetransmissions         atomic.Uint64
	ResetsReceived                  atomic.Uint64
	ResetsSent                      atomic.Uint64
	ImmediateResponsesReceived      atomic.Uint64
	ImmediateResponsesSent          atomic.Uint64
	DelayedResponsesReceived        atomic.Uint64
	DelayedResponsesSent            atomic.Uint64
	DelayedResponsesRetransmissions atomic.Uint64
	CacheHits                       atomic.Uint64
	CacheMisses                     atomic.Uint64
	Errors                          atomic.Uint64
}

// New returns zeroed statistics.
func New() *Statistics { return &Statistics{} }

// Snapshot is a point-in-time copy of Statistics.
type Snapshot struct {
	AcksReceived                    uint64
	AcksSent                        uint64
	RequestsReceived                uint64
	RequestsSent                    uint64
	RequestsRetransmissions         uint64
	ResetsReceived                  uint64
	ResetsSent                      uint64
	ImmediateResponsesReceived      uint64
	ImmediateResponsesSent          uint64
	DelayedResponsesReceived        uint64
	DelayedResponsesSent            uint64
	DelayedResponsesRetransmissions uint64
	CacheHits                       uint64
	CacheMisses                     uint64
	Errors                          uint64
}

// counter pairs a metric name with its field.
type counter struct {
	name string
	help string
	get  func(*Statistics) *atomic.Uint64
}

var counters = []counter{
	{"acks_received_total", "Empty ACKs received.", func(s *Statistics) *atomic.Uint64 { return &s.AcksReceived }},
	{"acks_sent_total", "Empty ACKs sent.", func(s *Statistics) *atomic.Uint64 { return &s.AcksSent }},
	{"requests_received_total", "Requests received.", func(s *Statistics) *atomic.Uint64 { return &s.RequestsReceived }},
	{"requests_sent_total", "Requests sent.", func(s *Statistics) *atomic.Uint64 { return &s.RequestsSent }},
	{"requests_retransmissions_total", "Request retransmissions.", func(s *Statistics) *atomic.Uint64 { return &s.RequestsRetransmissions }},
	{"resets_received_total", "RST messages received.", func(s *Statistics) *atomic.Uint64 { return &s.ResetsReceived }},
	{"resets_sent_total", "RST messages sent.", func(s *Statistics) *atomic.Uint64 { return &s.ResetsSent }},
	{"immediate_responses_received_total", "Piggybacked responses received.", func(s *Statistics) *atomic.Uint64 { return &s.ImmediateResponsesReceived }},
	{"immediate_responses_sent_total", "Piggybacked or immediate responses sent.", func(s *Statistics) *atomic.Uint64 { return &s.ImmediateResponsesSent }},
	{"delayed_responses_received_total", "Separate responses received.", func(s *Statistics) *atomic.Uint64 { return &s.DelayedResponsesReceived }},
	{"delayed_responses_sent_total", "Separate responses sent.", func(s *Statistics) *atomic.Uint64 { return &s.DelayedResponsesSent }},
	{"delayed_responses_retransmissions_total", "Separate response retransmissions.", func(s *Statistics) *atomic.Uint64 { return &s.DelayedResponsesRetransmissions }},
	{"cache_hits_total", "Proxy cache hits.", func(s *Statistics) *atomic.Uint64 { return &s.CacheHits }},
	{"cache_misses_total", "Proxy cache misses.", func(s *Statistics) *atomic.Uint64 { return &s.CacheMisses }},
	{"errors_total", "Protocol errors.", func(s *Statistics) *atomic.Uint64 { return &s.Errors }},
}

// Snapshot reads all counters.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		AcksReceived:                    s.AcksReceived.Load(),
		AcksSent:                        s.AcksSent.Load(),
		RequestsReceived:                s.RequestsReceived.Load(),
		RequestsSent:                    s.RequestsSent.Load(),
		RequestsRetransmissions:         s.RequestsRetransmissions.Load(),
		ResetsReceived:                  s.ResetsReceived.Load(),
		ResetsSent:                      s.ResetsSent.Load(),
		ImmediateResponsesReceived:      s.ImmediateResponsesReceived.Load(),
		ImmediateResponsesSent:          s.ImmediateResponsesSent.Load(),
		DelayedResponsesReceived:        s.DelayedResponsesReceived.Load(),
		DelayedResponsesSent:            s.DelayedResponsesSent.Load(),
		DelayedResponsesRetransmissions: s.DelayedResponsesRetransmissions.Load(),
		CacheHits:                       s.CacheHits.Load(),
		CacheMisses:                     s.CacheMisses.Load(),
		Errors:                          s.Errors.Load(),
	}
}

// Clear resets every counter to zero.
func (s *Statistics) Clear() {
	for _, c := range counters {
		c.get(s).Store(0)
	}
}
