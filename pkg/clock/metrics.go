package clock

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// GossipOutTotal is the number of times each component was written to an
	// outbound message, labelled by component.
	GossipOutTotal *prometheus.CounterVec

	// GossipInTotal is the number of times each component was merged from an
	// inbound message, labelled by component.
	GossipInTotal *prometheus.CounterVec

	// GossipInErrorsTotal is the number of inbound messages rejected while
	// decoding, labelled by component.
	GossipInErrorsTotal *prometheus.CounterVec

	// RateLimitedTotal is the number of candidate times rejected by the rate
	// limiter.
	RateLimitedTotal prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		GossipOutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lattice",
				Subsystem: "clock",
				Name:      "gossip_out_total",
				Help:      "Number of times a component was written to an outbound message",
			},
			[]string{"component"},
		),
		GossipInTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lattice",
				Subsystem: "clock",
				Name:      "gossip_in_total",
				Help:      "Number of times a component was merged from an inbound message",
			},
			[]string{"component"},
		),
		GossipInErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lattice",
				Subsystem: "clock",
				Name:      "gossip_in_errors_total",
				Help:      "Number of inbound messages rejected while decoding",
			},
			[]string{"component"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lattice",
				Subsystem: "clock",
				Name:      "rate_limited_total",
				Help:      "Number of candidate times rejected by the rate limiter",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.GossipOutTotal,
		m.GossipInTotal,
		m.GossipInErrorsTotal,
		m.RateLimitedTotal,
	)
}
