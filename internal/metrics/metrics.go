// Package metrics exposes prometheus counters for a crawl run.
//
// A nil *Collector is valid and records nothing, so components can take
// one unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "devtrawl"

// Collector holds the crawl counters.
type Collector struct {
	requests      *prometheus.CounterVec
	rotations     prometheus.Counter
	recordsSaved  prometheus.Counter
	recordsFailed prometheus.Counter
	partitions    *prometheus.CounterVec
}

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API requests by operation and final outcome.",
		}, []string{"op", "outcome"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_rotations_total",
			Help:      "Credential rotations caused by rate limiting.",
		}),
		recordsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_saved_total",
			Help:      "Contact records stored by the sink.",
		}),
		recordsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Contact records the sink rejected or could not store.",
		}),
		partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_total",
			Help:      "Partitions crawled by result.",
		}, []string{"result"}),
	}

	for _, col := range []prometheus.Collector{c.requests, c.rotations, c.recordsSaved, c.recordsFailed, c.partitions} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRequest counts one logical request.
func (c *Collector) ObserveRequest(op, outcome string, rotations int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(op, outcome).Inc()
	if rotations > 0 {
		c.rotations.Add(float64(rotations))
	}
}

// ObserveSave counts the result of one sink batch.
func (c *Collector) ObserveSave(saved, failed int) {
	if c == nil {
		return
	}
	c.recordsSaved.Add(float64(saved))
	c.recordsFailed.Add(float64(failed))
}

// ObservePartition counts one finished partition. result is one of
// "done", "truncated", "failed".
func (c *Collector) ObservePartition(result string) {
	if c == nil {
		return
	}
	c.partitions.WithLabelValues(result).Inc()
}
