package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Statistics value as Prometheus counters.
type Collector struct {
	stats *Statistics
	descs []*prometheus.Desc
}

// NewCollector creates a collector for s. Metric names are prefixed with
// namespace ("coap" when empty); constLabels are attached to every metric.
func NewCollector(s *Statistics, namespace string, constLabels prometheus.Labels) *Collector {
	if namespace == "" {
		namespace = "coap"
	}
	c := &Collector{stats: s, descs: make([]*prometheus.Desc, len(counters))}
	for i, ctr := range counters {
		c.descs[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", ctr.name),
			ctr.help,
			nil,
			constLabels,
		)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i, ctr := range counters {
		ch <- prometheus.MustNewConstMetric(c.descs[i], prometheus.CounterValue, float64(ctr.get(c.stats).Load()))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
