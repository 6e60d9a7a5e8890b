package stats

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSnapshotAndClear(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RequestsReceived.Add(1)
			s.AcksSent.Add(1)
		}()
	}
	wg.Wait()
	s.Errors.Add(3)

	snap := s.Snapshot()
	if snap.RequestsReceived != 10 || snap.AcksSent != 10 || snap.Errors != 3 {
		t.Errorf("snapshot = %+v", snap)
	}

	s.Clear()
	if snap := s.Snapshot(); snap != (Snapshot{}) {
		t.Errorf("after Clear snapshot = %+v, want zero", snap)
	}
}

func TestCollector(t *testing.T) {
	s := New()
	s.CacheHits.Add(2)
	s.CacheMisses.Add(1)

	c := NewCollector(s, "", prometheus.Labels{"role": "proxy"})
	if got := testutil.CollectAndCount(c); got != len(counters) {
		t.Fatalf("collected %d metrics, want %d", got, len(counters))
	}

	expected := `
# HELP coap_cache_hits_total Proxy cache hits.
# TYPE coap_cache_hits_total counter
coap_cache_hits_total{role="proxy"} 2
# HELP coap_cache_misses_total Proxy cache misses.
# TYPE coap_cache_misses_total counter
coap_cache_misses_total{role="proxy"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "coap_cache_hits_total", "coap_cache_misses_total"); err != nil {
		t.Errorf("CollectAndCompare failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}
