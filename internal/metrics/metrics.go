// Package metrics exposes the hub's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hublink_connects_total",
		Help: "Connect attempts by integration and outcome.",
	}, []string{"integration", "outcome"})

	ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hublink_probe_outcomes_total",
		Help: "Probe results by integration and class (ok, ok_degraded, rejected).",
	}, []string{"integration", "class"})

	ExecutesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hublink_executes_total",
		Help: "Execute calls by integration, action and outcome.",
	}, []string{"integration", "action", "outcome"})

	VendorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hublink_vendor_call_seconds",
		Help:    "Wall time of dispatched vendor calls, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"integration"})
)
