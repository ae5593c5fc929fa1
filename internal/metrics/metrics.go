// Package metrics defines the Prometheus metrics exported by the fleet
// proxy: per-link health/load gauges, balancer pick counters, session
// admission gauges, and relay throughput. Labels stay bounded to the link's
// static identity (protocol, interface) to avoid cardinality explosions from
// per-request domains.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Link metrics, labeled by the link's stable identity.
var (
	linkStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socks5fleet_link_status",
			Help: "Link reachability as of the last health probe (1 = healthy, 0 = unreachable)",
		},
		[]string{"link"},
	)
	linkLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socks5fleet_link_latency_seconds",
			Help: "Link latency measured by the last successful health probe",
		},
		[]string{"link"},
	)
	linkConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socks5fleet_link_connections",
			Help: "Number of live relayed connections currently open on a link",
		},
		[]string{"link"},
	)
)

// Balancer metrics.
var (
	balancerPicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5fleet_balancer_picks_total",
			Help: "Total link picks by the balancer, labeled by chosen link and priority bucket",
		},
		[]string{"link", "priority"},
	)
	balancerRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socks5fleet_balancer_rejections_total",
			Help: "Total requests rejected by the balancer (global gate miss or no eligible link)",
		},
	)
)

// Session admission and relay metrics.
var (
	admissionInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socks5fleet_admission_sessions_in_use",
			Help: "Number of session worker slots currently in use",
		},
	)
	admissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socks5fleet_admission_rejected_total",
			Help: "Total worker-slot waits abandoned because the wait was canceled (server shutdown) before a slot became available",
		},
	)
	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socks5fleet_admission_wait_seconds",
			Help:    "Time a session spent waiting for a worker slot before being admitted",
			Buckets: prometheus.DefBuckets,
		},
	)
	relayBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socks5fleet_relay_bytes_total",
			Help: "Total bytes relayed between client and upstream, labeled by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(
		linkStatus,
		linkLatency,
		linkConnections,
		balancerPicksTotal,
		balancerRejectionsTotal,
		admissionInUse,
		admissionRejectedTotal,
		admissionWait,
		relayBytesTotal,
	)
}

// SetLinkStatus records a link's reachability as of the last probe.
func SetLinkStatus(link string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	linkStatus.WithLabelValues(link).Set(v)
}

// SetLinkLatency records a link's last-probed latency.
func SetLinkLatency(link string, seconds float64) {
	linkLatency.WithLabelValues(link).Set(seconds)
}

// SetLinkConnections records a link's current live-connection count.
func SetLinkConnections(link string, count int) {
	linkConnections.WithLabelValues(link).Set(float64(count))
}

// BalancerPickInc records one link selection by the balancer.
func BalancerPickInc(link, priority string) {
	balancerPicksTotal.WithLabelValues(link, priority).Inc()
}

// BalancerRejectionInc records one balancer rejection (no eligible link).
func BalancerRejectionInc() { balancerRejectionsTotal.Inc() }

// AdmissionInUseSet records the current number of occupied worker slots.
func AdmissionInUseSet(n int) { admissionInUse.Set(float64(n)) }

// AdmissionRejectedInc records one session rejected by the admission gate.
func AdmissionRejectedInc() { admissionRejectedTotal.Inc() }

// AdmissionWaitObserve records how long a session waited for a worker slot.
func AdmissionWaitObserve(d time.Duration) { admissionWait.Observe(d.Seconds()) }

// RelayBytesAdd adds n bytes relayed in the given direction ("client_to_upstream"
// or "upstream_to_client").
func RelayBytesAdd(direction string, n int) {
	relayBytesTotal.WithLabelValues(direction).Add(float64(n))
}
