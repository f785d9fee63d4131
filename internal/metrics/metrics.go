// Package metrics collects payout engine telemetry in a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records engine events. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	distributionsCreated *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	claimsTotal          *prometheus.CounterVec
	claimedAmount        *prometheus.CounterVec
	claimLatency         prometheus.Histogram
	feesLocked           *prometheus.CounterVec
	recoveries           prometheus.Counter
	sweptAmount          *prometheus.CounterVec
	rpcTotal             *prometheus.CounterVec
}

// NewCollector creates a collector whose metrics are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "payouts"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.distributionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "created_total",
			Help:      "Distributions created, by kind and entitlement source",
		},
		[]string{"kind", "source"},
	)

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions, by target status",
		},
		[]string{"status"},
	)

	c.claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Claim attempts, by result",
		},
		[]string{"result"},
	)

	c.claimedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "paid_amount_total",
			Help:      "Amount paid to beneficiaries, in funding asset base units",
		},
		[]string{"funding_asset"},
	)

	c.claimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "duration_seconds",
			Help:      "Time taken to process a claim",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	c.feesLocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "locked_amount_total",
			Help:      "Fees locked in at distribution creation",
		},
		[]string{"funding_asset", "fee"},
	)

	c.recoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "sweeps_total",
			Help:      "Recovery sweeps executed",
		},
	)

	c.sweptAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "swept_amount_total",
			Help:      "Unclaimed amount swept to recovery receivers",
		},
		[]string{"funding_asset"},
	)

	c.rpcTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests, by procedure and status code",
		},
		[]string{"procedure", "code"},
	)

	c.registry.MustRegister(
		c.distributionsCreated,
		c.transitions,
		c.claimsTotal,
		c.claimedAmount,
		c.claimLatency,
		c.feesLocked,
		c.recoveries,
		c.sweptAmount,
		c.rpcTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) DistributionCreated(kind, source, fundingAsset string, platformFee, maintenanceFee uint64) {
	if c == nil {
		return
	}
	c.distributionsCreated.WithLabelValues(kind, source).Inc()
	c.feesLocked.WithLabelValues(fundingAsset, "platform").Add(float64(platformFee))
	c.feesLocked.WithLabelValues(fundingAsset, "maintenance").Add(float64(maintenanceFee))
}

func (c *Collector) Transition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

// Claim records one claim attempt. amount is only counted when result is "ok".
func (c *Collector) Claim(result, fundingAsset string, amount uint64, took time.Duration) {
	if c == nil {
		return
	}
	c.claimsTotal.WithLabelValues(result).Inc()
	c.claimLatency.Observe(took.Seconds())
	if result == "ok" {
		c.claimedAmount.WithLabelValues(fundingAsset).Add(float64(amount))
	}
}

func (c *Collector) Recovery(fundingAsset string, swept uint64) {
	if c == nil {
		return
	}
	c.recoveries.Inc()
	c.sweptAmount.WithLabelValues(fundingAsset).Add(float64(swept))
}

func (c *Collector) RPC(procedure, code string) {
	if c == nil {
		return
	}
	c.rpcTotal.WithLabelValues(procedure, code).Inc()
}
