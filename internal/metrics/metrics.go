// Package metrics exposes Prometheus counters for discovery, assembly
// and the explorer boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExplorerRequests counts explorer calls by endpoint and outcome.
	ExplorerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_explorer_requests_total",
			Help: "Total number of explorer API requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// ExplorerLatency tracks explorer call latency.
	ExplorerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klingdrop_explorer_latency_seconds",
			Help:    "Explorer API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// CacheLookups counts metadata cache lookups by backend and result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_cache_lookups_total",
			Help: "Metadata cache lookups",
		},
		[]string{"backend", "result"},
	)

	// DiscoveryCandidates counts NFT candidates examined.
	DiscoveryCandidates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klingdrop_discovery_candidates_total",
			Help: "NFT candidates examined by collection discovery",
		},
	)

	// DiscoveryFailures counts candidates routed to standalone because
	// metadata could not be fetched or decoded.
	DiscoveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_discovery_failures_total",
			Help: "NFT candidates whose metadata fetch or decode failed",
		},
		[]string{"reason"},
	)

	// DiscoveryDuration tracks whole discovery runs.
	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "klingdrop_discovery_duration_seconds",
			Help:    "Collection discovery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AirdropOutputs counts distribution outputs built, by kind.
	AirdropOutputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_airdrop_outputs_total",
			Help: "Distribution outputs built",
		},
		[]string{"kind"},
	)

	// AirdropSkipped counts outputs skipped during assembly, by reason.
	AirdropSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_airdrop_skipped_outputs_total",
			Help: "Distribution outputs skipped during assembly",
		},
		[]string{"reason"},
	)

	// FeeRebuilds counts assemblies rebuilt with a higher fee.
	FeeRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klingdrop_airdrop_fee_rebuilds_total",
			Help: "Transactions rebuilt because the recommended fee exceeded the default",
		},
	)

	// Airdrops counts assembly and send attempts by stage and outcome.
	Airdrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_airdrops_total",
			Help: "Airdrop operations",
		},
		[]string{"stage", "outcome"},
	)

	// NotifyFailures counts sink publish failures by event kind.
	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_notify_failures_total",
			Help: "Notification sink publish failures",
		},
		[]string{"event"},
	)

	// RPCRequests counts JSON-RPC calls by method and outcome.
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klingdrop_rpc_requests_total",
			Help: "JSON-RPC requests",
		},
		[]string{"method", "outcome"},
	)
)

// Outcome returns the outcome label for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
